package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context) error
	New(ctx context.Context) error
	Open(ctx context.Context, args []string) error
	Edit(ctx context.Context, text string) error
	Save(ctx context.Context) error
	Sync(ctx context.Context) error
	Status(ctx context.Context) error
	SetConnectivity(ctx context.Context, mode string) error
	CloseDraft(ctx context.Context) error
	Logout(ctx context.Context) error
}

// runREPL reads commands line by line from reader and dispatches them to a.
// The loop ends on EOF or when the user types "exit" or "quit".
//
// Prompt & Commands
//
//	Not logged in:
//	  - help                               show available commands
//	  - login                              enter the session token
//	  - exit | quit                        leave the program
//
//	Logged in:
//	  - new                                start a new draft
//	  - open <id> <serverSavedAtMs> [ver]  open a draft, offering a newer local backup
//	  - edit <text>                        replace the draft text (autosaved)
//	  - save                               save now
//	  - sync                               push the local backup to the server
//	  - status                             show autosave state
//	  - online | offline | auto            pin or release connectivity
//	  - close                              close the current draft
//	  - logout                             wipe local backups and log out
//
// Handler errors are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("draft %s> ", statusFn()))
		line, err := readLine(reader)
		if err != nil {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: new, open, edit, save, sync, status, online, offline, auto, close, logout, exit")
			} else {
				printlnFn("Available commands: login, exit")
			}

		case "login":
			cmdErr = a.Login(ctx)

		case "new":
			cmdErr = a.New(ctx)

		case "open":
			cmdErr = a.Open(ctx, args)

		case "edit":
			cmdErr = a.Edit(ctx, strings.TrimSpace(strings.TrimPrefix(line, cmd)))

		case "save":
			cmdErr = a.Save(ctx)

		case "sync":
			cmdErr = a.Sync(ctx)

		case "status":
			cmdErr = a.Status(ctx)

		case "online", "offline", "auto":
			cmdErr = a.SetConnectivity(ctx, cmd)

		case "close":
			cmdErr = a.CloseDraft(ctx)

		case "logout":
			cmdErr = a.Logout(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if cmdErr != nil {
			printlnFn("Error:", cmdErr)
		}
	}
}

// statusLine is shown in the prompt.
func (a *App) statusLine() string {
	parts := make([]string, 0, 3)
	if !a.isLoggedIn() {
		parts = append(parts, "logged out")
	}
	if a.registry.Online() {
		parts = append(parts, "online")
	} else {
		parts = append(parts, "offline")
	}
	if a.current != nil {
		st := a.current.scheduler.Status()
		parts = append(parts, shortID(a.current.id)+":"+st.State.String())
	}
	return "(" + strings.Join(parts, " ") + ")"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
