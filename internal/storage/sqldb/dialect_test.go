package sqldb

import "testing"

func TestRewriteQuery(t *testing.T) {
	query := "SELECT * FROM attempts WHERE user_id = ? AND lesson_id = ? LIMIT ?"

	tests := []struct {
		dialect string
		want    string
	}{
		{"sqlite", query},
		{"mysql", query},
		{"postgres", "SELECT * FROM attempts WHERE user_id = $1 AND lesson_id = $2 LIMIT $3"},
	}
	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			d, ok := DialectFor(tt.dialect)
			if !ok {
				t.Fatalf("DialectFor(%q) not found", tt.dialect)
			}
			if got := d.RewriteQuery(query); got != tt.want {
				t.Errorf("RewriteQuery() = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestDialectFor(t *testing.T) {
	for name, want := range map[string]string{
		"":           "sqlite",
		"sqlite3":    "sqlite",
		"postgresql": "postgres",
		"mysql":      "mysql",
	} {
		d, ok := DialectFor(name)
		if !ok || d.Name() != want {
			t.Errorf("DialectFor(%q) = %v; want %s", name, d, want)
		}
	}
	if _, ok := DialectFor("oracle"); ok {
		t.Error("DialectFor(oracle) should be unsupported")
	}
}
