package security

import (
	"regexp"
	"sort"
	"strings"

	"vitess.io/vitess/go/vt/sqlparser"

	"nl2sql-tool/internal/utils"
)

const (
	confidenceClean     = 0.95
	confidenceUnwrapped = 0.9
	confidenceProse     = 0.5

	penaltyUnknownTable = 0.3
	penaltyUnbalanced   = 0.3
	penaltyUnparsable   = 0.05
)

var (
	fenceRe       = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \t]*\\n?(.*?)```")
	openFenceRe   = regexp.MustCompile("^```[A-Za-z0-9_-]*[ \t]*\\n?")
	labelRe       = regexp.MustCompile(`(?i)^(sql\s+query|sql)\s*:\s*`)
	lineKeywordRe = regexp.MustCompile(`(?im)^[ \t]*(SELECT|WITH|INSERT|UPDATE|DELETE)\b`)
	upperKeyword  = regexp.MustCompile(`\b(SELECT|WITH|INSERT|UPDATE|DELETE)\b`)
	anyKeywordRe  = regexp.MustCompile(`(?i)\b(SELECT|WITH|INSERT|UPDATE|DELETE)\b`)
	// A WITH that opens a CTE rather than a sentence.
	cteHeadRe    = regexp.MustCompile(`(?i)^WITH\s+(RECURSIVE\s+)?[A-Za-z_"` + "`" + `][\w"` + "`" + `]*\s*(\([^)]*\)\s*)?AS\s*\(`)
	proseLineRe  = regexp.MustCompile(`(?i)^(this query|this will|this sql|note:|explanation:|here is|here's)`)
	selectHeadRe = regexp.MustCompile(`(?i)^SELECT\b`)
	clauseHeadRe = regexp.MustCompile(`(?i)^(FROM|WHERE|(?:NATURAL\s+|LEFT\s+|RIGHT\s+|INNER\s+|OUTER\s+|FULL\s+|CROSS\s+)*JOIN|GROUP\s+BY|ORDER\s+BY|HAVING|LIMIT|OFFSET|UNION|INTERSECT|EXCEPT|WINDOW|QUALIFY)\b`)
	// Short words that also open English sentences only count in upper case.
	operatorHeadRe = regexp.MustCompile(`^((AND|OR|NOT|ON|AS|IN|IS|USING|CASE|WHEN|THEN|ELSE|END)\b|[(),=<>|+/])`)
	cteNextRe      = regexp.MustCompile(`(?i)^[A-Za-z_"` + "`" + `][\w"` + "`" + `]*\s*(\([^)]*\)\s*)?AS\s*\(`)
	openTailRe     = regexp.MustCompile(`(?i)([,(=<>+*/|-]|\b(AND|OR|NOT|ON|AS|IN|IS|FROM|WHERE|SELECT|JOIN|BY|HAVING|UNION|ALL|DISTINCT|WITH|CASE|WHEN|THEN|ELSE|LIKE|BETWEEN))$`)
	tableRefRe     = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+`)
	identRe        = regexp.MustCompile(`^[A-Za-z_"` + "`" + `][\w."` + "`" + `]*`)
	cteNameRe      = regexp.MustCompile(`(?i)(?:\bWITH\s+(?:RECURSIVE\s+)?|,\s*)([A-Za-z_]\w*)\s*(?:\([^)]*\)\s*)?AS\s*\(`)
	formatWordRe   = regexp.MustCompile(`(?i)\b(SELECT|FROM|WHERE|(?:LEFT\s+|RIGHT\s+|INNER\s+|OUTER\s+|FULL\s+|CROSS\s+)*JOIN|GROUP\s+BY|ORDER\s+BY|HAVING|LIMIT|UNION(?:\s+ALL)?)\b`)
)

// Extraction is one statement recovered from model output.
type Extraction struct {
	SQL           string   `json:"sql"`
	Confidence    float64  `json:"confidence"`
	Stripped      bool     `json:"stripped"`
	Safe          bool     `json:"safe"`
	StatementType string   `json:"statement_type"`
	Tables        []string `json:"tables"`
}

// SQLExtractor isolates a single SQL statement from free-form model text and
// scores how much it trusts the result.
type SQLExtractor struct {
	validator *SQLValidator
}

func NewSQLExtractor(validator *SQLValidator) *SQLExtractor {
	if validator == nil {
		validator = NewSQLValidator(0)
	}
	return &SQLExtractor{validator: validator}
}

// Extract returns the first statement in raw. knownTables, when non-empty, is
// used to penalize references to tables the schema does not have.
func (e *SQLExtractor) Extract(raw string, knownTables []string) (*Extraction, error) {
	text := strings.TrimSpace(raw)
	unwrapped := false
	prose := false

	if m := fenceRe.FindStringSubmatchIndex(text); m != nil {
		if strings.TrimSpace(text[:m[0]]) != "" || strings.TrimSpace(text[m[1]:]) != "" {
			prose = true
		}
		text = strings.TrimSpace(text[m[2]:m[3]])
		unwrapped = true
	} else if loc := openFenceRe.FindStringIndex(text); loc != nil {
		text = strings.TrimSpace(strings.TrimSuffix(text[loc[1]:], "```"))
		unwrapped = true
	}

	if loc := labelRe.FindStringIndex(text); loc != nil {
		text = text[loc[1]:]
		unwrapped = true
	}

	start := findStatementStart(text)
	if start < 0 {
		return nil, utils.NewExtractionError("no SQL statement found in model output")
	}
	if strings.TrimSpace(text[:start]) != "" {
		prose = true
	}

	stmt, trailing := cutStatement(text[start:])
	if trailing {
		prose = true
	}
	if stmt == "" {
		return nil, utils.NewExtractionError("no SQL statement found in model output")
	}

	confidence := confidenceClean
	switch {
	case prose:
		confidence = confidenceProse
	case unwrapped:
		confidence = confidenceUnwrapped
	}

	if _, balanced := maskLiterals(stmt); !balanced {
		confidence -= penaltyUnbalanced
	}

	var tables []string
	if parsed, err := e.validator.parse(stmt); err == nil {
		tables = tablesFromAST(parsed)
	} else {
		confidence -= penaltyUnparsable
		tables = tablesFromText(stmt)
	}

	if hasUnknownTable(tables, knownTables) {
		confidence -= penaltyUnknownTable
	}

	return &Extraction{
		SQL:           stmt,
		Confidence:    clamp(confidence),
		Stripped:      prose,
		Safe:          e.validator.CheckExecutable(stmt) == nil,
		StatementType: StatementType(stmt),
		Tables:        tables,
	}, nil
}

// findStatementStart prefers a keyword at the start of a line, then an
// upper-case keyword inside a sentence, then any keyword.
func findStatementStart(text string) int {
	for _, m := range lineKeywordRe.FindAllStringSubmatchIndex(text, -1) {
		if acceptKeyword(text, m[2]) {
			return m[2]
		}
	}
	for _, re := range []*regexp.Regexp{upperKeyword, anyKeywordRe} {
		for _, m := range re.FindAllStringIndex(text, -1) {
			if acceptKeyword(text, m[0]) {
				return m[0]
			}
		}
	}
	return -1
}

func acceptKeyword(text string, at int) bool {
	if strings.EqualFold(text[at:at+4], "WITH") {
		return cteHeadRe.MatchString(text[at:])
	}
	return true
}

// cutStatement ends the statement at the first terminator outside quotes, at
// a line that reads like prose, or at a blank line followed by text that does
// not continue the SQL. trailing reports whether anything other than
// whitespace followed.
func cutStatement(text string) (stmt string, trailing bool) {
	masked, _ := maskLiterals(text)

	end := len(text)
	if i := strings.IndexByte(masked, ';'); i >= 0 {
		end = i
	}

	offset := 0
	blank := -1
lines:
	for i, line := range strings.SplitAfter(masked[:end], "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			if i > 0 && blank < 0 {
				blank = offset
			}
		case i > 0 && proseLineRe.MatchString(trimmed):
			end = offset
			break lines
		case blank >= 0 && !continuesStatement(masked[:blank], trimmed):
			end = blank
			break lines
		default:
			blank = -1
		}
		offset += len(line)
	}

	rest := strings.TrimSpace(text[end:])
	rest = strings.TrimSpace(strings.TrimLeft(rest, ";"))
	return strings.TrimSpace(text[:end]), rest != ""
}

// continuesStatement reports whether next, the first line after a blank line,
// carries on the masked statement before it.
func continuesStatement(before, next string) bool {
	if strings.Count(before, "(") > strings.Count(before, ")") {
		return true
	}
	tail := strings.TrimSpace(before)
	if openTailRe.MatchString(tail) {
		return true
	}
	if selectHeadRe.MatchString(next) {
		// the main query of a CTE; any other SELECT starts a second statement
		return StatementType(before) == "WITH" && strings.HasSuffix(tail, ")")
	}
	return clauseHeadRe.MatchString(next) || operatorHeadRe.MatchString(next) || cteNextRe.MatchString(next)
}

func tablesFromAST(stmt sqlparser.Statement) []string {
	seen := map[string]bool{}
	ctes := map[string]bool{}

	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch n := node.(type) {
		case *sqlparser.CommonTableExpr:
			ctes[strings.ToLower(n.ID.String())] = true
		case *sqlparser.AliasedTableExpr:
			if tn, ok := n.Expr.(sqlparser.TableName); ok && !tn.Name.IsEmpty() {
				seen[tn.Name.String()] = true
			}
		}
		return true, nil
	}, stmt)

	tables := make([]string, 0, len(seen))
	for name := range seen {
		if !ctes[strings.ToLower(name)] {
			tables = append(tables, name)
		}
	}
	sort.Strings(tables)
	return tables
}

func tablesFromText(sql string) []string {
	masked, _ := maskLiterals(sql)

	ctes := map[string]bool{}
	for _, m := range cteNameRe.FindAllStringSubmatch(masked, -1) {
		ctes[strings.ToLower(m[1])] = true
	}

	seen := map[string]bool{}
	for _, m := range tableRefRe.FindAllStringIndex(masked, -1) {
		name := identRe.FindString(sql[m[1]:])
		if i := strings.LastIndexByte(name, '.'); i >= 0 {
			name = name[i+1:]
		}
		name = strings.Trim(name, "\"`")
		if name == "" || ctes[strings.ToLower(name)] {
			continue
		}
		seen[name] = true
	}

	tables := make([]string, 0, len(seen))
	for name := range seen {
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables
}

func hasUnknownTable(tables, known []string) bool {
	if len(known) == 0 {
		return false
	}
	set := make(map[string]bool, len(known))
	for _, k := range known {
		set[strings.ToLower(k)] = true
	}
	for _, t := range tables {
		if !set[strings.ToLower(t)] {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// FormatSQL puts each major clause on its own line for display. String
// literals are left untouched.
func FormatSQL(sql string) string {
	sql = strings.TrimSpace(sql)
	masked, _ := maskLiterals(sql)

	var b strings.Builder
	last := 0
	for _, m := range formatWordRe.FindAllStringIndex(masked, -1) {
		b.WriteString(strings.TrimRight(sql[last:m[0]], " \t\n"))
		if m[0] > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(sql[m[0]:m[1]])
		last = m[1]
	}
	b.WriteString(sql[last:])

	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
