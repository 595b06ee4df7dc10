// Command build holds the project's build tasks. Run with:
//
//	go run ./build <task>
package main

import (
	"os"
	"os/exec"

	"github.com/goyek/goyek/v2"
)

// run executes a go subcommand, streaming its output.
func run(a *goyek.A, args ...string) {
	a.Logf("go %v", args)
	cmd := exec.CommandContext(a.Context(), "go", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		a.Error(err)
	}
}

var vet = goyek.Define(goyek.Task{
	Name:  "vet",
	Usage: "Run go vet on all packages",
	Action: func(a *goyek.A) {
		run(a, "vet", "./...")
	},
})

var test = goyek.Define(goyek.Task{
	Name:  "test",
	Usage: "Run the tests with the race detector",
	Action: func(a *goyek.A) {
		run(a, "test", "-race", "./...")
	},
})

var binary = goyek.Define(goyek.Task{
	Name:  "build",
	Usage: "Build the orchestra binary into bin/",
	Action: func(a *goyek.A) {
		run(a, "build", "-o", "bin/orchestra", "./cmd/orchestra")
	},
})

var _ = goyek.Define(goyek.Task{
	Name:  "all",
	Usage: "vet, test and build",
	Deps:  goyek.Deps{vet, test, binary},
})

func main() {
	goyek.Main(os.Args[1:])
}
