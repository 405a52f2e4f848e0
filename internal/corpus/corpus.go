// Package corpus loads sentence lists from text, CSV, JSON and JSONL files.
package corpus

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// maxConcurrentLoads limits parallel file reads in LoadAll.
const maxConcurrentLoads = 4

type textObject struct {
	Text string `json:"text"`
}

// Load reads the sentences in path. The format follows the extension:
//
//	.txt, no extension  one sentence per line
//	.csv                the "text" or "sentence" column, else the first column
//	.json               array of strings, or of objects with a "text" field
//	.jsonl, .ndjson     one object with a "text" field per line
//
// Blank entries are dropped and surrounding whitespace trimmed.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: %w", err)
	}
	defer f.Close()

	var texts []string
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".txt", "":
		texts, err = readLines(f)
	case ".csv":
		texts, err = readCSV(f)
	case ".json":
		texts, err = readJSON(f)
	case ".jsonl", ".ndjson":
		texts, err = readJSONL(f)
	default:
		return nil, fmt.Errorf("corpus: unsupported file extension: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("corpus: %s: %w", filepath.Base(path), err)
	}
	return texts, nil
}

// LoadAll reads several files concurrently and concatenates their sentences
// in the order the paths were given.
func LoadAll(ctx context.Context, paths []string) ([]string, error) {
	results := make([][]string, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLoads)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			texts, err := Load(path)
			if err != nil {
				return err
			}
			results[i] = texts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []string
	for _, texts := range results {
		out = append(out, texts...)
	}
	return out, nil
}

// Split turns newline-separated text into sentences.
func Split(text string) []string {
	texts, _ := readLines(strings.NewReader(text))
	return texts
}

func keep(texts []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		texts = append(texts, s)
	}
	return texts
}

func readLines(r io.Reader) ([]string, error) {
	var texts []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		texts = keep(texts, sc.Text())
	}
	return texts, sc.Err()
}

func readCSV(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	col, start := 0, 0
	for i, header := range records[0] {
		h := strings.ToLower(strings.TrimSpace(header))
		if h == "text" || h == "sentence" {
			col, start = i, 1
			break
		}
	}

	var texts []string
	for _, row := range records[start:] {
		if col < len(row) {
			texts = keep(texts, row[col])
		}
	}
	return texts, nil
}

func readJSON(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var texts []string
	var stringArray []string
	if err := json.Unmarshal(data, &stringArray); err == nil {
		for _, s := range stringArray {
			texts = keep(texts, s)
		}
		return texts, nil
	}

	var objectArray []textObject
	if err := json.Unmarshal(data, &objectArray); err != nil {
		return nil, fmt.Errorf("parsing JSON: expected array of strings or objects with 'text' field: %w", err)
	}
	for _, obj := range objectArray {
		texts = keep(texts, obj.Text)
	}
	return texts, nil
}

func readJSONL(r io.Reader) ([]string, error) {
	var texts []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for line := 1; sc.Scan(); line++ {
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var obj textObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		texts = keep(texts, obj.Text)
	}
	return texts, sc.Err()
}
