package wire

import (
	"context"
	"io"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/jmgilman/go/errors"
	"github.com/jmgilman/gitwire"
)

// Mode selects how a Runner schedules entries.
type Mode int

const (
	// ModeParallel starts a worker per entry and waits for all of them.
	ModeParallel Mode = iota

	// ModeSingle processes entries one at a time in order.
	ModeSingle
)

// Operation processes one entry and reports whether it succeeded. prefix
// identifies the entry in progress lines written while entries run concurrently.
type Operation func(ctx context.Context, prefix string, e gitwire.Entry) (bool, error)

// Runner executes an Operation over a list of entries.
type Runner struct {
	// Mode is the scheduling mode.
	Mode Mode

	// Concurrency caps the workers of ModeParallel. Zero or less starts one
	// worker per entry.
	Concurrency int

	// Output receives progress lines. Defaults to os.Stdout.
	Output io.Writer
}

// Run applies op to every entry. The result is true only when every call
// returned true. An error aborts ModeSingle at once; in ModeParallel the first
// error is returned after every worker has finished.
func (r *Runner) Run(ctx context.Context, entries []gitwire.Entry, op Operation) (bool, error) {
	if len(entries) == 0 {
		return false, errors.New(gitwire.CodeNothingToOperate, "There are no items to operate.")
	}

	w := r.Output
	if w == nil {
		w = os.Stdout
	}
	out := newPrinter(w)

	if r.Mode == ModeSingle {
		return r.single(ctx, out, entries, op)
	}
	return r.parallel(ctx, out, entries, op)
}

func (r *Runner) single(ctx context.Context, out *printer, entries []gitwire.Entry, op Operation) (bool, error) {
	n := len(entries)
	result := true

	for i, e := range entries {
		out.line(nil, ">> %d/%d started%s", i+1, n, labelSuffix(e.Name, e.Description))

		var ok bool
		err := guard(i, func(int) error {
			var err error
			ok, err = op(ctx, "", e)
			return err
		})
		if err != nil {
			return false, err
		}
		if !ok {
			result = false
		}
	}

	out.line(nil, ">> All tasks have done!")
	return result, nil
}

func (r *Runner) parallel(ctx context.Context, out *printer, entries []gitwire.Entry, op Operation) (bool, error) {
	n := len(entries)
	var failed atomic.Bool

	err := runPool(r.Concurrency, n, func(i int) error {
		e := entries[i]
		prefix := "No." + strconv.Itoa(i) + " "
		label := labelSuffix(e.Name, e.Description)

		out.line(progressColor, ">> %s(%d/%d) started%s", prefix, i+1, n, label)
		ok, err := op(ctx, prefix, e)
		if err != nil {
			failed.Store(true)
			out.line(failureColor, ">> %s(%d/%d) failed%s", prefix, i+1, n, label)
			return err
		}

		if ok {
			out.line(progressColor, ">> %s(%d/%d) succeeded%s", prefix, i+1, n, label)
		} else {
			failed.Store(true)
			out.line(failureColor, ">> %s(%d/%d) failed%s", prefix, i+1, n, label)
		}
		return nil
	})

	out.line(progressColor, ">> All tasks have done!")
	if err != nil {
		return false, err
	}
	return !failed.Load(), nil
}
