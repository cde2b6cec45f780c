// cmd/wisp is a thin wrapper around the VM API: it parses no surface
// syntax of its own (unit files are the VM's own gob-encoded wire
// format), it only dispatches to internal/vm and internal/module. The
// command-alias-map and TTY-sensitive banner idiom below follow
// cmd/sentra/main.go in the teacher repo.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/mattn/go-isatty"

	"wisp/internal/module"
	"wisp/internal/vm"
)

const version = "0.1.0"

var commandAliases = map[string]string{
	"r": "run",
	"i": "repl",
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cmd := args[0]
	if alias, ok := commandAliases[cmd]; ok {
		cmd = alias
	}

	switch cmd {
	case "--help", "-h", "help":
		usage()
	case "--version", "-v", "version":
		fmt.Println("wisp", version)
	case "run":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: wisp run <unit-file>")
			os.Exit(2)
		}
		runUnit(args[1])
	case "repl":
		repl()
	default:
		fmt.Fprintf(os.Stderr, "wisp: unknown command %q\n", args[0])
		usage()
		os.Exit(2)
	}
}

func banner() {
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		fmt.Printf("wisp %s\n", version)
	}
}

func usage() {
	fmt.Println(`wisp - a stack-based Lisp VM

Usage:
  wisp run <unit-file>    load and call a compiled unit
  wisp repl               load units interactively from stdin paths
  wisp version            print the version
  wisp help               print this message`)
}

func runUnit(path string) {
	unit, err := module.ReadUnitFile(path)
	if err != nil {
		log.Fatalf("wisp: %v", err)
	}

	machine := vm.New(vm.WithLogger(log.New(os.Stderr, "wisp: ", log.LstdFlags)))
	id, err := machine.Load(unit, module.OverrideVarStrings)
	if err != nil {
		log.Fatalf("wisp: loading %s: %v", path, err)
	}

	result, err := machine.Call(id)
	if err != nil {
		log.Fatalf("wisp: %v", err)
	}
	fmt.Println(result)
}

func repl() {
	banner()
	loader := module.NewFileLoader()
	machine := vm.New()

	fmt.Println("enter unit file paths, one per line; blank line to exit")
	var line string
	for {
		fmt.Print("> ")
		if _, err := fmt.Scanln(&line); err != nil {
			return
		}
		if line == "" {
			return
		}
		unit, err := loader.Resolve(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		id, err := machine.Load(unit, module.ReuseVarStrings)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		result, err := machine.Call(id)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		fmt.Println(result)
	}
}
