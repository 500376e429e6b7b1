package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/DrewBradfordXYZ/sforce-go"
)

// getReader opens path, or standard input when fromStdin is set and no path is given.
func getReader(path string, fromStdin bool) (io.ReadCloser, error) {
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		return f, nil
	}
	if fromStdin {
		return io.NopCloser(os.Stdin), nil
	}
	return nil, errors.New("a file path or --stdin is required")
}

// readRecords decodes a stream of JSON objects or arrays of objects. Nested
// objects become relationship records, arrays of strings become repeated
// fields, and null clears the field.
func readRecords(r io.Reader) ([]sforce.Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var records []sforce.Record
	for {
		var raw any
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode records: %w", err)
		}

		switch v := raw.(type) {
		case map[string]any:
			rec, err := toRecord(v)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", len(records), err)
			}
			records = append(records, rec)
		case []any:
			for _, item := range v {
				obj, ok := item.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("record %d: expected an object, got %T", len(records), item)
				}
				rec, err := toRecord(obj)
				if err != nil {
					return nil, fmt.Errorf("record %d: %w", len(records), err)
				}
				records = append(records, rec)
			}
		default:
			return nil, fmt.Errorf("expected an object or array, got %T", raw)
		}
	}
}

func toRecord(obj map[string]any) (sforce.Record, error) {
	rec := make(sforce.Record, len(obj))
	for name, value := range obj {
		switch v := value.(type) {
		case map[string]any:
			nested, err := toRecord(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			rec[name] = nested
		case []any:
			values := make([]string, len(v))
			for i, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("%s: only arrays of strings are supported, got %T", name, item)
				}
				values[i] = s
			}
			rec[name] = values
		default:
			rec[name] = v
		}
	}
	return rec, nil
}

// readIDs returns the whitespace or comma separated ids in r.
func readIDs(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)

	var ids []string
	for scanner.Scan() {
		for id := range strings.SplitSeq(scanner.Text(), ",") {
			if id != "" {
				ids = append(ids, id)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ids: %w", err)
	}
	return ids, nil
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
