package sandbox

import (
	"fmt"
	"strings"
)

// Language describes how the Docker driver builds and runs one Judge0
// language id.
type Language struct {
	ID      int
	Name    string
	Image   string
	File    string
	Compile string
	Run     string
}

// DefaultLanguages covers the ids the candidate editor offers.
var DefaultLanguages = map[int]Language{
	71: {ID: 71, Name: "Python (3.11)", Image: "python:3.11-alpine", File: "main.py", Run: "python3 main.py"},
	63: {ID: 63, Name: "JavaScript (Node.js 20)", Image: "node:20-alpine", File: "main.js", Run: "node main.js"},
	60: {ID: 60, Name: "Go (1.22)", Image: "golang:1.22-alpine", File: "main.go", Compile: "GOCACHE=/tmp/gocache go build -o /tmp/main main.go", Run: "/tmp/main"},
	54: {ID: 54, Name: "C++ (GCC 13)", Image: "gcc:13", File: "main.cpp", Compile: "g++ -O2 -std=c++17 -o /tmp/main main.cpp", Run: "/tmp/main"},
	50: {ID: 50, Name: "C (GCC 13)", Image: "gcc:13", File: "main.c", Compile: "gcc -O2 -o /tmp/main main.c -lm", Run: "/tmp/main"},
}

const (
	stdinFile         = "stdin.txt"
	compileOutputFile = ".compile_output"
	compileFailedExit = 97
)

// script is the shell program executed inside the container.
func (l Language) script() string {
	var b strings.Builder
	b.WriteString("set -u\n")
	if l.Compile != "" {
		fmt.Fprintf(&b, "%s > %s 2>&1 || exit %d\n", l.Compile, compileOutputFile, compileFailedExit)
	}
	fmt.Fprintf(&b, "exec %s < %s\n", l.Run, stdinFile)
	return b.String()
}
