package history

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"
)

// CSVSaver writes records as CSV with a header row.
type CSVSaver struct{}

func (CSVSaver) Extension() string { return "csv" }

func (CSVSaver) Save(recs []Record, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Write([]string{"timestamp", "open", "high", "low", "close", "bb_low", "bb_high", "atr",
		"ai_signal", "bollinger_entry", "bollinger_exit", "action"})
	for _, r := range recs {
		w.Write([]string{
			time.UnixMilli(r.TS).UTC().Format(time.RFC3339),
			ff(r.Open), ff(r.High), ff(r.Low), ff(r.Close),
			ff(r.BBLow), ff(r.BBHigh), ff(r.ATR),
			strconv.Itoa(int(r.AISignal)),
			strconv.Itoa(int(r.BollingerEntry)),
			strconv.Itoa(int(r.BollingerExit)),
			r.Action,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func ff(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// JSONSaver writes records as an indented JSON array.
type JSONSaver struct{}

func (JSONSaver) Extension() string { return "json" }

func (JSONSaver) Save(recs []Record, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}

// ParquetSaver writes records as Parquet.
type ParquetSaver struct{}

func (ParquetSaver) Extension() string { return "parquet" }

func (ParquetSaver) Save(recs []Record, path string) error {
	return parquet.WriteFile(path, recs)
}
