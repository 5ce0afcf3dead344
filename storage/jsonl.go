package storage

import (
	"bufio"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// AppendJSONL hängt eine Zeile an eine JSONL-Datei an und legt fehlende
// Verzeichnisse an. Append-only: ein abgebrochener Lauf hinterlässt keine
// halb geschriebenen früheren Zeilen.
func AppendJSONL(path string, row any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// WriteJSONLRows schreibt eine JSONL-Datei komplett neu.
func WriteJSONLRows(path string, rows []map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return err
		}
	}
	return w.Flush()
}

// ForEachJSONL liest eine JSONL-Datei zeilenweise. Eine fehlende Datei
// ist keine Fehlerbedingung (leere Iteration).
func ForEachJSONL(path string, fn func(row map[string]any) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1024*1024), 64*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return fmt.Errorf("invalid JSONL line in %s: %w", path, err)
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return sc.Err()
}

// ReadJSONL liest eine JSONL-Datei vollständig ein.
func ReadJSONL(path string) ([]map[string]any, error) {
	var rows []map[string]any
	err := ForEachJSONL(path, func(row map[string]any) error {
		rows = append(rows, row)
		return nil
	})
	return rows, err
}

// WriteJSON schreibt ein Objekt als eingerücktes JSON.
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// WriteLines schreibt Zeilen mit abschließendem Newline.
func WriteLines(path string, lines []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
}

// csvCell rendert einen JSONL-Wert als CSV-Zelle.
func csvCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64, bool, json.Number:
		return fmt.Sprint(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}

// WriteCSVFromJSONL projiziert eine JSONL-Datei auf den gegebenen Header
// und schreibt sie als CSV. Gibt die Zeilenzahl zurück.
func WriteCSVFromJSONL(jsonlPath, csvPath string, header []string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(csvPath), 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(csvPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return 0, err
	}

	n := 0
	err = ForEachJSONL(jsonlPath, func(row map[string]any) error {
		record := make([]string, len(header))
		for i, k := range header {
			record[i] = csvCell(row[k])
		}
		n++
		return w.Write(record)
	})
	if err != nil {
		return n, err
	}
	w.Flush()
	return n, w.Error()
}

// WriteJSONArrayFromJSONL schreibt eine JSONL-Datei als JSON-Array,
// ohne alle Zeilen gleichzeitig im Speicher zu halten.
func WriteJSONArrayFromJSONL(jsonlPath, jsonPath string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(jsonPath), 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(jsonPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if _, err := f.WriteString("[\n"); err != nil {
		return 0, err
	}
	n := 0
	err = ForEachJSONL(jsonlPath, func(row map[string]any) error {
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		if n > 0 {
			if _, err := f.WriteString(",\n"); err != nil {
				return err
			}
		}
		n++
		_, err = f.Write(data)
		return err
	})
	if err != nil {
		return n, err
	}
	_, err = f.WriteString("\n]\n")
	return n, err
}

// RowSignature liefert die kanonische JSON-Signatur einer Zeile
// (sortierte Keys, kompakte Trennzeichen) für den Full-Row-Dedupe.
func RowSignature(row map[string]any) (string, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Checksum berechnet die SHA-256-Prüfsumme einer Datei.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CountNonEmptyLines zählt die nicht-leeren Zeilen einer Datei.
func CountNonEmptyLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1024*1024), 64*1024*1024)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	return n, sc.Err()
}

// CopyFile kopiert eine Datei (für Latest-Kopie und Snapshots).
func CopyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
