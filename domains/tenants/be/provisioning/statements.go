package provisioning

import "strings"

// splitStatements breaks a migration script into individual statements so
// they can be executed over pgx's extended protocol. Line comments are
// dropped; the scripts in database/ keep semicolons out of string literals,
// so a plain split is sufficient.
func splitStatements(script string) []string {
	var cleaned []string
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "--") {
			continue
		}
		cleaned = append(cleaned, line)
	}

	var statements []string
	for _, stmt := range strings.Split(strings.Join(cleaned, "\n"), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}
