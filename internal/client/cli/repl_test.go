package cli

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeExec struct {
	loggedIn bool

	calls []string
	args  []string
	fail  error
}

func (f *fakeExec) record(name string) error {
	f.calls = append(f.calls, name)
	return f.fail
}

func (f *fakeExec) isLoggedIn() bool { return f.loggedIn }
func (f *fakeExec) Login(ctx context.Context) error {
	f.loggedIn = true
	return f.record("login")
}
func (f *fakeExec) New(ctx context.Context) error { return f.record("new") }
func (f *fakeExec) Open(ctx context.Context, args []string) error {
	f.args = args
	return f.record("open")
}
func (f *fakeExec) Edit(ctx context.Context, text string) error {
	f.args = []string{text}
	return f.record("edit")
}
func (f *fakeExec) Save(ctx context.Context) error   { return f.record("save") }
func (f *fakeExec) Sync(ctx context.Context) error   { return f.record("sync") }
func (f *fakeExec) Status(ctx context.Context) error { return f.record("status") }
func (f *fakeExec) SetConnectivity(ctx context.Context, mode string) error {
	return f.record("conn:" + mode)
}
func (f *fakeExec) CloseDraft(ctx context.Context) error { return f.record("close") }
func (f *fakeExec) Logout(ctx context.Context) error {
	f.loggedIn = false
	return f.record("logout")
}

// captureOutput заменяет printlnFn и собирает вывод.
func captureOutput(t *testing.T) *[]string {
	t.Helper()
	var out []string
	var mu sync.Mutex
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		parts := make([]string, 0, len(a))
		for _, v := range a {
			switch x := v.(type) {
			case string:
				parts = append(parts, x)
			case error:
				parts = append(parts, x.Error())
			}
		}
		out = append(out, strings.Join(parts, " "))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return &out
}

func TestRunREPL_DispatchesCommands(t *testing.T) {
	captureOutput(t)

	input := strings.Join([]string{
		"help",
		"login",
		"new",
		"open note-1 1700000000000 3",
		"edit  chest pain,  resolved ",
		"save",
		"sync",
		"status",
		"offline",
		"online",
		"auto",
		"close",
		"logout",
		"exit",
		"save",
	}, "\n")

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "status" }, rdr(input))

	assert.Equal(t, []string{
		"login", "new", "open", "edit", "save", "sync", "status",
		"conn:offline", "conn:online", "conn:auto", "close", "logout",
	}, exec.calls)
}

func TestRunREPL_EditKeepsRestOfLine(t *testing.T) {
	captureOutput(t)

	exec := &fakeExec{loggedIn: true}
	runREPL(context.Background(), exec, func() string { return "" }, rdr("edit  BP 120/80, HR 72\n"))

	assert.Equal(t, []string{"BP 120/80, HR 72"}, exec.args)
}

func TestRunREPL_ReportsErrorsAndContinues(t *testing.T) {
	out := captureOutput(t)

	exec := &fakeExec{loggedIn: true, fail: errors.New("boom")}
	runREPL(context.Background(), exec, func() string { return "s" }, rdr("save\nfoobar\nquit\n"))

	assert.Equal(t, []string{"save"}, exec.calls)
	assert.Contains(t, *out, "Error: boom")
	assert.Contains(t, *out, "Unknown command: foobar")
	assert.Contains(t, *out, "Bye!")
}
