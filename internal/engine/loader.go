package engine

import (
	"bikedash/internal/models"
	"bytes"
	"math"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var ErrMalformedCSV = errors.New("malformed csv")

// --- 1. FAST ZERO-ALLOC PARSERS ---

func unsafeToString(b []byte) string {
	return *(*string)(unsafe.Pointer(&b))
}

// fastFloat parses "0.344167" -> 0.344167. Anything beyond an optional sign,
// digits and one dot (exponents, NaN) goes through strconv.
func fastFloat(b []byte) (float64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	var num float64
	i := 0
	neg := b[0] == '-'
	if neg || b[0] == '+' {
		i++
	}
	digits := 0
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		num = num*10 + float64(b[i]-'0')
		i++
		digits++
	}
	if i < len(b) && b[i] == '.' {
		i++
		div := 10.0
		for i < len(b) && b[i] >= '0' && b[i] <= '9' {
			num += float64(b[i]-'0') / div
			div *= 10
			i++
			digits++
		}
	}
	if i != len(b) || digits == 0 {
		f, err := strconv.ParseFloat(unsafeToString(b), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	if neg {
		num = -num
	}
	return num, true
}

func digit2(b []byte) (int, bool) {
	if b[0] < '0' || b[0] > '9' || b[1] < '0' || b[1] > '9' {
		return 0, false
	}
	return int(b[0]-'0')*10 + int(b[1]-'0'), true
}

// fastDate parses "2011-01-01" -> days since epoch
func fastDate(b []byte) (int32, bool) {
	if len(b) != 10 || b[4] != '-' || b[7] != '-' {
		return 0, false
	}
	hi, ok1 := digit2(b[0:2])
	lo, ok2 := digit2(b[2:4])
	m, ok3 := digit2(b[5:7])
	d, ok4 := digit2(b[8:10])
	if !(ok1 && ok2 && ok3 && ok4) {
		return 0, false
	}
	y := hi*100 + lo
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	// Reject dates time.Date had to normalize, e.g. 2011-02-30
	if t.Month() != time.Month(m) || t.Day() != d {
		return 0, false
	}
	return int32(models.DayOf(t)), true
}

// --- 2. LINE HELPERS ---

func nextLine(chunk []byte, pos int) ([]byte, int) {
	i := bytes.IndexByte(chunk[pos:], '\n')
	if i == -1 {
		return bytes.TrimSuffix(chunk[pos:], []byte{'\r'}), len(chunk)
	}
	return bytes.TrimSuffix(chunk[pos:pos+i], []byte{'\r'}), pos + i + 1
}

func isBlank(line []byte) bool {
	return len(bytes.TrimSpace(line)) == 0
}

// chunkBounds splits content into at most n newline-aligned, disjoint
// chunks that together cover all of it.
func chunkBounds(content []byte, n int) [][2]int {
	size := len(content) / n
	bounds := make([][2]int, 0, n)
	start := 0
	for i := 0; i < n && start < len(content); i++ {
		end := (i + 1) * size
		if i == n-1 || end > len(content) {
			end = len(content)
		}
		if end < start {
			end = start
		}
		if end < len(content) {
			if k := bytes.IndexByte(content[end:], '\n'); k != -1 {
				end += k + 1
			} else {
				end = len(content)
			}
		}
		if end > start {
			bounds = append(bounds, [2]int{start, end})
		}
		start = end
	}
	return bounds
}

type header struct {
	dateIdx int
	width   int
	names   []string // numeric columns, in order
	colIdx  []int    // field index -> numeric column index, -1 for the date
}

func parseHeader(line []byte) (*header, error) {
	fields := bytes.Split(line, []byte{','})
	h := &header{dateIdx: -1, width: len(fields), colIdx: make([]int, len(fields))}
	for i, f := range fields {
		name := string(bytes.Trim(bytes.TrimSpace(f), `"`))
		if name == DateColumn || name == "date" {
			if h.dateIdx != -1 {
				return nil, errors.Wrap(ErrMalformedCSV, "header has more than one date column")
			}
			h.dateIdx = i
			h.colIdx[i] = -1
			continue
		}
		if name == "" {
			return nil, errors.Wrapf(ErrMalformedCSV, "header field %d is empty", i+1)
		}
		h.colIdx[i] = len(h.names)
		h.names = append(h.names, name)
	}
	if h.dateIdx == -1 {
		return nil, errors.Wrapf(ErrMalformedCSV, "header has no %q column", DateColumn)
	}
	return h, nil
}

// --- 3. MAIN LOADER ---

// LoadColumnar reads a CSV file with a header row into a ColumnStore.
func LoadColumnar(path string, logger zerolog.Logger) (*ColumnStore, error) {
	start := time.Now()
	logger.Info().Str("path", path).Msg("loading dataset")

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read dataset %s", path)
	}

	store, err := ParseColumnar(content)
	if err != nil {
		return nil, errors.Wrapf(err, "parse dataset %s", path)
	}

	logger.Info().
		Int("rows", store.Len()).
		Str("start", store.Start().String()).
		Str("end", store.End().String()).
		Dur("took", time.Since(start)).
		Msg("dataset loaded")
	return store, nil
}

// ParseColumnar parses CSV content in parallel chunks.
func ParseColumnar(content []byte) (*ColumnStore, error) {
	// A. Header
	headerLine, pos := nextLine(content, 0)
	if isBlank(headerLine) {
		return nil, errors.Wrap(ErrMalformedCSV, "missing header row")
	}
	h, err := parseHeader(headerLine)
	if err != nil {
		return nil, err
	}
	content = content[pos:]
	if len(content) > 0 && content[len(content)-1] != '\n' {
		content = append(content[:len(content):len(content)], '\n')
	}

	// B. Count Rows (Parallel) for Exact Allocation
	bounds := chunkBounds(content, runtime.NumCPU())
	rowCounts := make([]int, len(bounds))
	var countWg sync.WaitGroup
	for i, b := range bounds {
		countWg.Add(1)
		go func(idx int, chunk []byte) {
			defer countWg.Done()
			for p := 0; p < len(chunk); {
				var line []byte
				line, p = nextLine(chunk, p)
				if !isBlank(line) {
					rowCounts[idx]++
				}
			}
		}(i, content[b[0]:b[1]])
	}
	countWg.Wait()

	totalRows := 0
	offsets := make([]int, len(bounds))
	for i, c := range rowCounts {
		offsets[i] = totalRows
		totalRows += c
	}
	if totalRows == 0 {
		return nil, ErrEmptyDataset
	}

	// C. Allocate Columns ONCE
	dates := make([]int32, totalRows)
	cols := make([][]float64, len(h.names))
	for i := range cols {
		cols[i] = make([]float64, totalRows)
	}

	// D. Parallel Parsing
	sep := []byte{','}
	var g errgroup.Group
	for i, b := range bounds {
		chunk := content[b[0]:b[1]]
		writeOffset := offsets[i]
		g.Go(func() error {
			row := 0
			for p := 0; p < len(chunk); {
				var line []byte
				line, p = nextLine(chunk, p)
				if isBlank(line) {
					continue
				}
				at := writeOffset + row
				rest := line
				for j := 0; j < h.width; j++ {
					var field []byte
					if j < h.width-1 {
						var found bool
						if field, rest, found = bytes.Cut(rest, sep); !found {
							return errors.Wrapf(ErrMalformedCSV, "data row %d: %d fields, want %d", at+1, j+1, h.width)
						}
					} else {
						if bytes.IndexByte(rest, ',') != -1 {
							return errors.Wrapf(ErrMalformedCSV, "data row %d: more than %d fields", at+1, h.width)
						}
						field = rest
					}
					field = bytes.Trim(bytes.TrimSpace(field), `"`)

					if j == h.dateIdx {
						d, ok := fastDate(field)
						if !ok {
							return errors.Wrapf(ErrMalformedCSV, "data row %d: bad date %q", at+1, field)
						}
						dates[at] = d
						continue
					}
					f, ok := fastFloat(field)
					if !ok {
						return errors.Wrapf(ErrMalformedCSV, "data row %d: column %s: bad number %q",
							at+1, h.names[h.colIdx[j]], field)
					}
					cols[h.colIdx[j]][at] = f
				}
				row++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return NewColumnStore(dates, h.names, cols)
}
