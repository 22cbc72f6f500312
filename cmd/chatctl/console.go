package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

// console reads user lines and prints output that may arrive concurrently
// from the live-chat channel.
type console interface {
	ReadLine() (string, error)
	Println(a ...any)
	Close() error
}

// newConsole returns a line-editing terminal when stdin is a TTY and a plain
// line reader otherwise.
func newConsole(prompt string) (console, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return newPlainConsole(os.Stdin, os.Stdout), nil
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("enter raw mode: %w", err)
	}
	rw := struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}
	t := term.NewTerminal(rw, prompt)
	if w, h, err := term.GetSize(fd); err == nil {
		_ = t.SetSize(w, h)
	}
	return &ttyConsole{t: t, fd: fd, state: state}, nil
}

type ttyConsole struct {
	t     *term.Terminal
	fd    int
	state *term.State
}

func (c *ttyConsole) ReadLine() (string, error) { return c.t.ReadLine() }

// Println writes through the terminal so the prompt is redrawn below the output.
func (c *ttyConsole) Println(a ...any) {
	_, _ = fmt.Fprintln(c.t, a...)
}

func (c *ttyConsole) Close() error {
	return term.Restore(c.fd, c.state)
}

type plainConsole struct {
	mu  sync.Mutex
	in  *bufio.Scanner
	out io.Writer
}

func newPlainConsole(in io.Reader, out io.Writer) *plainConsole {
	return &plainConsole{in: bufio.NewScanner(in), out: out}
}

func (c *plainConsole) ReadLine() (string, error) {
	if c.in.Scan() {
		return c.in.Text(), nil
	}
	if err := c.in.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (c *plainConsole) Println(a ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, a...)
}

func (c *plainConsole) Close() error { return nil }
