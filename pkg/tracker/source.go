package tracker

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/pierrec/lz4/v4"
	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxRecordSize bounds a single record document.
const DefaultMaxRecordSize = 64 << 20

// lz4Suffix marks inputs stored as an LZ4 frame.
const lz4Suffix = ".lz4"

// Sentinel errors for record loading.
var (
	ErrRecordTooLarge  = errors.New("record exceeds size limit")
	ErrSchemaViolation = errors.New("record violates schema")
	ErrMalformedInput  = errors.New("malformed record input")
)

//go:embed record.schema.json
var recordSchema []byte

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(recordSchema))
})

// LoadOptions controls how record files are decoded.
type LoadOptions struct {
	// MaxRecordSize bounds one record document in bytes. Zero means DefaultMaxRecordSize.
	MaxRecordSize int
	// Validate checks each document against the record schema before decoding.
	Validate bool
}

func (o LoadOptions) maxSize() int {
	if o.MaxRecordSize <= 0 {
		return DefaultMaxRecordSize
	}

	return o.MaxRecordSize
}

// Load reads all records from path. The file may hold a JSON array or one
// record per line; a .lz4 suffix means the content is an LZ4 frame.
func Load(ctx context.Context, path string, opts LoadOptions) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open records: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, lz4Suffix) {
		r = lz4.NewReader(f)
	}

	records, err := Decode(ctx, r, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return records, nil
}

// LoadFiles loads several shards concurrently. Records are returned in
// argument order, each shard in file order.
func LoadFiles(ctx context.Context, paths []string, opts LoadOptions) ([]Record, error) {
	shards := make([][]Record, len(paths))

	g, gctx := errgroup.WithContext(ctx)

	for i, path := range paths {
		g.Go(func() error {
			records, err := Load(gctx, path, opts)
			if err != nil {
				return err
			}

			shards[i] = records

			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		return nil, err
	}

	total := 0
	for _, shard := range shards {
		total += len(shard)
	}

	records := make([]Record, 0, total)
	for _, shard := range shards {
		records = append(records, shard...)
	}

	return records, nil
}

// Decode reads records from r, detecting array or line-delimited layout
// from the first non-space byte.
func Decode(ctx context.Context, r io.Reader, opts LoadOptions) ([]Record, error) {
	br := bufio.NewReader(r)

	first, err := firstByte(br)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	var schema *gojsonschema.Schema

	if opts.Validate {
		schema, err = compiledSchema()
		if err != nil {
			return nil, fmt.Errorf("compile record schema: %w", err)
		}
	}

	d := &decoder{schema: schema, maxSize: opts.maxSize()}

	if first == '[' {
		return d.array(ctx, br)
	}

	return d.lines(ctx, br)
}

func firstByte(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}

		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			continue
		}

		return b, br.UnreadByte()
	}
}

type decoder struct {
	schema  *gojsonschema.Schema
	maxSize int
}

func (d *decoder) array(ctx context.Context, r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)

	_, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}

	var records []Record

	for n := 1; dec.More(); n++ {
		ctxErr := ctx.Err()
		if ctxErr != nil {
			return nil, ctxErr
		}

		var raw json.RawMessage

		err = dec.Decode(&raw)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d: %w", ErrMalformedInput, n, err)
		}

		if len(raw) > d.maxSize {
			return nil, fmt.Errorf("%w: element %d is %d bytes", ErrRecordTooLarge, n, len(raw))
		}

		rec, err := d.record(raw)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", n, err)
		}

		records = append(records, rec)
	}

	_, err = dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}

	return records, nil
}

func (d *decoder) lines(ctx context.Context, r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(d.maxSize, 64*1024)), d.maxSize)

	var records []Record

	line := 0

	for scanner.Scan() {
		line++

		ctxErr := ctx.Err()
		if ctxErr != nil {
			return nil, ctxErr
		}

		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		rec, err := d.record(raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		records = append(records, rec)
	}

	err := scanner.Err()
	if errors.Is(err, bufio.ErrTooLong) {
		return nil, fmt.Errorf("%w: line %d", ErrRecordTooLarge, line+1)
	}

	if err != nil {
		return nil, err
	}

	return records, nil
}

func (d *decoder) record(raw []byte) (Record, error) {
	if d.schema != nil {
		result, err := d.schema.Validate(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return Record{}, fmt.Errorf("%w: %w", ErrMalformedInput, err)
		}

		if !result.Valid() {
			first := result.Errors()[0]

			return Record{}, fmt.Errorf("%w: %s: %s", ErrSchemaViolation, first.Field(), first.Description())
		}
	}

	var rec Record

	err := json.Unmarshal(raw, &rec)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}

	return rec, nil
}
