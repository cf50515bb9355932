package output

import (
	"context"

	"github.com/san-kum/dsfeas/internal/model"
)

const (
	FormatJSONL  = "jsonl"
	FormatSQLite = "sqlite"
)

// Open returns a sink for the given format.
func Open(path, format string) (Sink, error) {
	switch format {
	case FormatJSONL, "":
		return OpenStream(path)
	case FormatSQLite:
		return OpenSQL(path)
	}
	return nil, model.Configf("output", "unknown format %q", format)
}

// Read replays every record stored at path in the given format.
func Read(ctx context.Context, path, format string, fn func(*Record) error) error {
	switch format {
	case FormatJSONL, "":
		return ReadFile(path, fn)
	case FormatSQLite:
		s, err := OpenSQL(path)
		if err != nil {
			return err
		}
		defer s.Close()
		return s.Each(ctx, fn)
	}
	return model.Configf("output", "unknown format %q", format)
}
