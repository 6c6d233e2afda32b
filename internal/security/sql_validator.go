package security

import (
	"fmt"
	"regexp"
	"strings"

	"vitess.io/vitess/go/vt/sqlparser"

	"nl2sql-tool/internal/utils"
)

// Complexity labels reported next to executed statements.
const (
	ComplexitySimple   = "Simple"
	ComplexityModerate = "Moderate"
	ComplexityComplex  = "Complex"
)

var (
	leadingKeywordRe = regexp.MustCompile(`^[\s(]*([A-Za-z]+)`)
	// Matched against SQL whose literals and comments are blanked out.
	writeKeywordRe = regexp.MustCompile(`(?i)\b(DROP|DELETE|UPDATE|INSERT|CREATE|ALTER|TRUNCATE|MERGE|GRANT|REVOKE|ATTACH|DETACH|PRAGMA|VACUUM|LOAD_FILE|INTO\s+OUTFILE|INTO\s+DUMPFILE)\b`)
)

// SQLValidator decides whether a statement may be executed. Only a single
// SELECT or WITH statement passes.
type SQLValidator struct {
	maxQueryLength int
	parser         *sqlparser.Parser
}

func NewSQLValidator(maxQueryLength int) *SQLValidator {
	if maxQueryLength <= 0 {
		maxQueryLength = 10000
	}
	return &SQLValidator{
		maxQueryLength: maxQueryLength,
		parser:         sqlparser.NewTestParser(),
	}
}

// CheckExecutable returns nil when sql is a single read statement. Empty,
// oversized or malformed input is a VALIDATION_ERROR; anything else that is
// refused is UNSAFE_SQL.
func (sv *SQLValidator) CheckExecutable(sql string) error {
	normalized := normalizeSQL(sql)
	if normalized == "" {
		return utils.NewValidationError("SQL query must not be empty", "")
	}
	if len(normalized) > sv.maxQueryLength {
		return utils.NewValidationError("SQL query is too long",
			fmt.Sprintf("query length %d exceeds maximum %d", len(normalized), sv.maxQueryLength))
	}

	masked, balanced := maskLiterals(normalized)
	if !balanced {
		return utils.NewValidationError("SQL query is malformed", "unbalanced quotes or parentheses")
	}

	keyword := StatementType(masked)
	if keyword != "SELECT" && keyword != "WITH" {
		if keyword == "" {
			keyword = "unknown"
		}
		return utils.NewUnsafeSQLError(fmt.Sprintf("%s statements are not executed", keyword))
	}
	if strings.Contains(masked, ";") {
		return utils.NewUnsafeSQLError("multiple statements are not allowed")
	}
	if m := writeKeywordRe.FindString(masked); m != "" {
		return utils.NewUnsafeSQLError(fmt.Sprintf("statement contains %s", strings.ToUpper(m)))
	}

	// Dialect specific syntax may not parse. Text that reaches this point has
	// no terminator outside quotes and comments, so it is one statement.
	if stmt, err := sv.parse(normalized); err == nil && !isSelectStatement(stmt) {
		return utils.NewUnsafeSQLError("only SELECT and WITH statements can be executed")
	}
	return nil
}

// IsReadOnly reports whether CheckExecutable accepts sql.
func (sv *SQLValidator) IsReadOnly(sql string) bool {
	return sv.CheckExecutable(sql) == nil
}

// ParseSQL parses a statement with the vitess parser.
func (sv *SQLValidator) ParseSQL(sql string) (sqlparser.Statement, error) {
	return sv.parse(sql)
}

func (sv *SQLValidator) parse(sql string) (sqlparser.Statement, error) {
	return sv.parser.Parse(normalizeSQL(sql))
}

func isSelectStatement(stmt sqlparser.Statement) bool {
	switch stmt.(type) {
	case *sqlparser.Select, *sqlparser.Union:
		return true
	default:
		return false
	}
}

// CheckQueryComplexity scores a parsed statement. Joins and subqueries weigh
// the most.
func (sv *SQLValidator) CheckQueryComplexity(sql string) (int, error) {
	stmt, err := sv.parse(sql)
	if err != nil {
		return 0, err
	}

	switch s := stmt.(type) {
	case *sqlparser.Select:
		return calculateSelectComplexity(s), nil
	case *sqlparser.Union:
		return calculateUnionComplexity(s) + 10, nil
	default:
		return 0, fmt.Errorf("unsupported statement type %T", stmt)
	}
}

// ComplexityLabel maps CheckQueryComplexity onto Simple, Moderate or Complex.
// It returns "" when the statement cannot be parsed.
func (sv *SQLValidator) ComplexityLabel(sql string) string {
	score, err := sv.CheckQueryComplexity(sql)
	if err != nil {
		return ""
	}
	switch {
	case score <= 4:
		return ComplexitySimple
	case score <= 10:
		return ComplexityModerate
	default:
		return ComplexityComplex
	}
}

func calculateUnionComplexity(u *sqlparser.Union) int {
	total := 0
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch n := node.(type) {
		case *sqlparser.Union:
			if n != u {
				total += 10
			}
		case *sqlparser.Select:
			total += calculateSelectComplexity(n)
			return false, nil
		}
		return true, nil
	}, u)
	return total
}

func calculateSelectComplexity(selectStmt *sqlparser.Select) int {
	complexity := 1

	if len(selectStmt.From) > 1 {
		complexity += len(selectStmt.From) * 5
	}
	if selectStmt.Where != nil {
		complexity += 3
	}
	if selectStmt.GroupBy != nil {
		complexity += 2
	}
	if selectStmt.Having != nil {
		complexity += 2
	}
	if selectStmt.OrderBy != nil {
		complexity += 2
	}
	if selectStmt.Limit != nil {
		complexity++
	}

	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch node.(type) {
		case *sqlparser.JoinTableExpr:
			complexity += 5
		case *sqlparser.Subquery, *sqlparser.CommonTableExpr:
			complexity += 3
		}
		return true, nil
	}, selectStmt)

	return complexity
}

// StatementType returns the upper-cased leading keyword of sql, skipping
// whitespace, comments and opening parentheses.
func StatementType(sql string) string {
	masked, _ := maskLiterals(sql)
	m := leadingKeywordRe.FindStringSubmatch(masked)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

func normalizeSQL(sql string) string {
	sql = strings.TrimSpace(sql)
	for strings.HasSuffix(sql, ";") {
		sql = strings.TrimSpace(strings.TrimSuffix(sql, ";"))
	}
	return sql
}

// maskLiterals blanks string literals, quoted identifiers and comments so
// keyword and terminator searches only see SQL structure. Comment markers
// inside quotes are literal text. Newlines are kept and the length never
// changes, so offsets into the result are valid in sql. balanced is false when
// a quote or block comment is left open or parentheses do not pair up.
func maskLiterals(sql string) (masked string, balanced bool) {
	b := []byte(sql)

	var quote byte
	depth := 0
	balanced = true
	for i := 0; i < len(b); i++ {
		c := b[i]
		if quote != 0 {
			if c == quote {
				// doubled quote is an escaped quote
				if i+1 < len(b) && b[i+1] == quote {
					b[i], b[i+1] = ' ', ' '
					i++
					continue
				}
				quote = 0
				continue
			}
			b[i] = ' '
			continue
		}

		switch {
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '-' && i+1 < len(b) && b[i+1] == '-':
			for ; i < len(b) && b[i] != '\n'; i++ {
				b[i] = ' '
			}
		case c == '/' && i+1 < len(b) && b[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			stop := len(b)
			if end < 0 {
				balanced = false
			} else {
				stop = i + 2 + end + 2
			}
			for ; i < stop; i++ {
				if b[i] != '\n' {
					b[i] = ' '
				}
			}
			i--
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				balanced = false
			}
		}
	}

	if quote != 0 || depth != 0 {
		balanced = false
	}
	return string(b), balanced
}
