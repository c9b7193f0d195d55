// Command godbsql is a line-oriented SQL shell over a single godb database
// directory. It understands CREATE TABLE, INSERT, and single-table SELECT
// (optionally filtered and projected); anything else is reported as
// unsupported rather than guessed at.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/csc560/coredb/internal/godb"
)

var (
	dataDir    = flag.String("data", "./data", "directory holding one backing file per table")
	bufferSize = flag.Int("buffer-pages", godb.DefaultBufferPoolSize, "buffer pool capacity, in pages")
)

func main() {
	flag.Parse()

	if err := os.MkdirAll(*dataDir, 0755); err != nil {
		fmt.Fprintln(os.Stderr, "godbsql:", err)
		os.Exit(1)
	}

	db := godb.NewDatabase(*bufferSize)
	godb.SetDefaultDatabase(db)

	shell := &shell{db: db, dataDir: *dataDir}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "godb> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".godbsql_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "godbsql:", err)
		os.Exit(1)
	}
	defer rl.Close()

	var buf strings.Builder
	for {
		prompt := "godb> "
		if buf.Len() > 0 {
			prompt = "   -> "
		}
		rl.SetPrompt(prompt)

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			buf.Reset()
			continue
		}
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "godbsql:", err)
			return
		}

		buf.WriteString(line)
		buf.WriteString(" ")
		stmt := strings.TrimSpace(buf.String())
		if !strings.HasSuffix(stmt, ";") {
			continue
		}
		buf.Reset()
		stmt = strings.TrimSuffix(stmt, ";")
		if stmt == "" {
			continue
		}

		if err := shell.run(stmt); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}
