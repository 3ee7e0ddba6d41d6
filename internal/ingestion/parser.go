package ingestion

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/jeovahfialho/mt5-history/internal/domain"
)

var ErrMissingColumn = errors.New("coluna obrigatória ausente")

// ParseError aponta a linha do arquivo (1 = cabeçalho) que não pôde ser lida.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("linha %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type Parser struct {
	batchSize int
	workers   int
}

func NewParser(batchSize, workers int) *Parser {
	if workers <= 0 {
		workers = 1
	}
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Parser{
		batchSize: batchSize,
		workers:   workers,
	}
}

type ParseResult struct {
	Trades []domain.Trade
	Errors []error
}

type column int

const (
	colSymbol column = iota
	colType
	colVolume
	colOpenPrice
	colClosePrice
	colProfit
	colOpenTime
	colCloseTime
	numColumns
)

var headerAliases = map[string]column{
	"symbol":     colSymbol,
	"type":       colType,
	"volume":     colVolume,
	"openprice":  colOpenPrice,
	"closeprice": colClosePrice,
	"profit":     colProfit,
	"opentime":   colOpenTime,
	"closetime":  colCloseTime,
}

type layout [numColumns]int

type row struct {
	line   int
	record []string
}

type parsedRow struct {
	line  int
	trade *domain.Trade
	err   error
}

// ParseFile lê um export CSV do MT5. Linhas inválidas viram ParseError em Errors;
// as operações válidas saem na ordem do arquivo.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) (*ParseResult, error) {
	br := bufio.NewReader(reader)

	headerLine, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("erro ao ler cabeçalho: %w", err)
	}
	if strings.TrimSpace(headerLine) == "" {
		return nil, fmt.Errorf("arquivo vazio: %w", ErrMissingColumn)
	}

	csvReader := csv.NewReader(io.MultiReader(strings.NewReader(headerLine), br))
	csvReader.Comma = detectSeparator(headerLine)
	csvReader.LazyQuotes = true
	csvReader.FieldsPerRecord = -1
	csvReader.TrimLeadingSpace = true

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("erro ao ler cabeçalho: %w", err)
	}

	cols, err := parseHeader(header)
	if err != nil {
		return nil, err
	}

	jobs := make(chan row, p.workers*2)
	results := make(chan []parsedRow, p.workers)
	readErrs := make(chan error, 1)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go p.worker(ctx, cols, jobs, results, &wg)
	}

	go func() {
		defer close(jobs)

		for {
			record, err := csvReader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				var perr *csv.ParseError
				if errors.As(err, &perr) {
					// linha malformada: registra e segue
					select {
					case jobs <- row{line: perr.StartLine, record: nil}:
					case <-ctx.Done():
						return
					}
					continue
				}
				readErrs <- err
				return
			}

			line, _ := csvReader.FieldPos(0)

			select {
			case jobs <- row{line: line, record: record}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var all []parsedRow
	for batch := range results {
		all = append(all, batch...)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	select {
	case err := <-readErrs:
		return nil, fmt.Errorf("erro ao ler arquivo: %w", err)
	default:
	}

	sort.Slice(all, func(i, j int) bool { return all[i].line < all[j].line })

	final := &ParseResult{
		Trades: make([]domain.Trade, 0, len(all)),
		Errors: make([]error, 0),
	}
	for _, r := range all {
		if r.err != nil {
			final.Errors = append(final.Errors, &ParseError{Line: r.line, Err: r.err})
			continue
		}
		if r.trade != nil {
			final.Trades = append(final.Trades, *r.trade)
		}
	}

	return final, nil
}

func (p *Parser) worker(ctx context.Context, cols layout, jobs <-chan row,
	results chan<- []parsedRow, wg *sync.WaitGroup) {

	defer wg.Done()

	batch := make([]parsedRow, 0, p.batchSize)

	flush := func() {
		if len(batch) > 0 {
			results <- batch
			batch = make([]parsedRow, 0, p.batchSize)
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case job, ok := <-jobs:
			if !ok {
				flush()
				return
			}

			if job.record == nil {
				batch = append(batch, parsedRow{line: job.line, err: errors.New("registro CSV malformado")})
			} else if !isBlank(job.record) {
				trade, err := parseRecord(cols, job.record)
				batch = append(batch, parsedRow{line: job.line, trade: trade, err: err})
			}

			if len(batch) >= p.batchSize {
				flush()
			}
		}
	}
}

func detectSeparator(headerLine string) rune {
	if strings.Count(headerLine, ";") > strings.Count(headerLine, ",") {
		return ';'
	}
	if strings.Count(headerLine, "\t") > strings.Count(headerLine, ",") {
		return '\t'
	}
	return ','
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(h)
}

func parseHeader(header []string) (layout, error) {
	var cols layout
	for i := range cols {
		cols[i] = -1
	}

	for i, h := range header {
		if c, ok := headerAliases[normalizeHeader(h)]; ok && cols[c] == -1 {
			cols[c] = i
		}
	}

	if cols[colProfit] == -1 {
		return cols, fmt.Errorf("%w: Profit", ErrMissingColumn)
	}
	if cols[colCloseTime] == -1 {
		return cols, fmt.Errorf("%w: Close Time", ErrMissingColumn)
	}

	return cols, nil
}

func field(cols layout, record []string, c column) string {
	i := cols[c]
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func parseRecord(cols layout, record []string) (*domain.Trade, error) {
	profit, err := parseNumber(field(cols, record, colProfit), true)
	if err != nil {
		return nil, fmt.Errorf("profit inválido: %w", err)
	}

	volume, err := parseNumber(field(cols, record, colVolume), false)
	if err != nil {
		return nil, fmt.Errorf("volume inválido: %w", err)
	}

	openPrice, err := parseNumber(field(cols, record, colOpenPrice), false)
	if err != nil {
		return nil, fmt.Errorf("preço de abertura inválido: %w", err)
	}

	closePrice, err := parseNumber(field(cols, record, colClosePrice), false)
	if err != nil {
		return nil, fmt.Errorf("preço de fechamento inválido: %w", err)
	}

	closeTime := field(cols, record, colCloseTime)
	if closeTime == "" {
		return nil, errors.New("close time vazio")
	}

	return &domain.Trade{
		Symbol:     field(cols, record, colSymbol),
		Type:       field(cols, record, colType),
		Volume:     volume,
		OpenPrice:  openPrice,
		ClosePrice: closePrice,
		Profit:     profit,
		OpenTime:   NormalizeTime(field(cols, record, colOpenTime)),
		CloseTime:  NormalizeTime(closeTime),
	}, nil
}

// parseNumber aceita vírgula ou ponto como separador decimal. Quando os dois aparecem,
// o último é o decimal e o outro separa milhares; espaços também separam milhares.
func parseNumber(s string, required bool) (float64, error) {
	if s == "" {
		if required {
			return 0, errors.New("valor vazio")
		}
		return 0, nil
	}

	s = strings.ReplaceAll(s, " ", "")
	dec, thousands := ".", ","
	if i := strings.LastIndexAny(s, ",."); i >= 0 && s[i] == ',' {
		dec, thousands = ",", "."
	}
	if strings.Count(s, dec) > 1 {
		return 0, fmt.Errorf("separador decimal ambíguo em %q", s)
	}

	intPart, frac, hasFrac := strings.Cut(s, dec)
	groups := strings.Split(intPart, thousands)
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return 0, fmt.Errorf("separador de milhar fora de posição em %q", s)
		}
	}
	s = strings.Join(groups, "")
	if hasFrac {
		s += "." + frac
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

// NormalizeTime converte "YYYY.MM.DD ..." (formato do terminal MT5) para "YYYY-MM-DD ...".
// Qualquer outro texto é devolvido sem alteração.
func NormalizeTime(s string) string {
	if len(s) >= 10 && s[4] == '.' && s[7] == '.' {
		return s[:4] + "-" + s[5:7] + "-" + s[8:]
	}
	return s
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// DecodeJSON lê um array JSON de operações no formato da API.
func DecodeJSON(r io.Reader) ([]domain.Trade, error) {
	var trades []domain.Trade
	if err := json.NewDecoder(r).Decode(&trades); err != nil {
		return nil, fmt.Errorf("erro ao decodificar JSON: %w", err)
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	return trades, nil
}

// ParsePath escolhe o leitor pela extensão: .json ou CSV para o resto.
func (p *Parser) ParsePath(ctx context.Context, path string) (*ParseResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("erro ao abrir arquivo: %w", err)
	}
	defer file.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		trades, err := DecodeJSON(file)
		if err != nil {
			return nil, err
		}
		return &ParseResult{Trades: trades, Errors: []error{}}, nil
	}

	return p.ParseFile(ctx, file)
}
