package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"sort"
	"strconv"

	"tailview/internal/model"
)

// fixed leading columns; payload keys follow alphabetically
var headCols = []string{"timestamp", "time", "category", "stream", "event_id", "message"}

func ToCSV(path string, events []model.ParsedEvent) error {
	if len(events) == 0 {
		return errors.New("no events")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()
	cols := columns(events)
	if err := w.Write(cols); err != nil {
		return err
	}
	for _, e := range events {
		row := make([]string, len(cols))
		for i, c := range cols {
			switch c {
			case "timestamp":
				row[i] = strconv.FormatInt(e.Timestamp, 10)
			case "time":
				row[i] = e.FormattedTime
			case "category":
				row[i] = e.Category
			case "stream":
				row[i] = e.StreamName
			case "event_id":
				row[i] = e.EventID
			case "message":
				row[i] = e.Message
			default:
				if v, ok := e.Payload[c]; ok {
					b, _ := json.Marshal(v)
					row[i] = string(b)
				}
			}
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func ToNDJSON(path string, events []model.ParsedEvent) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	defer bw.Flush()
	for _, e := range events {
		b, _ := json.Marshal(e)
		if _, err := bw.Write(append(b, '\n')); err != nil {
			return err
		}
	}
	return nil
}

func columns(events []model.ParsedEvent) []string {
	set := map[string]struct{}{}
	for _, e := range events {
		for k := range e.Payload {
			set[k] = struct{}{}
		}
	}
	fixed := map[string]struct{}{}
	for _, c := range headCols {
		fixed[c] = struct{}{}
	}
	extra := make([]string, 0, len(set))
	for k := range set {
		if _, clash := fixed[k]; !clash {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(append([]string{}, headCols...), extra...)
}
