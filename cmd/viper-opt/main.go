// SPDX-License-Identifier: MIT
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/fatih/color"
	"github.com/tliron/commonlog"

	"viper/internal/il"
	"viper/internal/interp"
	"viper/internal/ir"
	"viper/internal/transform"
	"viper/internal/verify"
)

func main() {
	pipeline := flag.String("pipeline", "O2", "named pipeline to run (O0, O1, O2)")
	passes := flag.String("passes", "", "comma-separated pass list overriding -pipeline")
	run := flag.Bool("run", false, "execute @main after optimizing and print its result")
	verifyOnly := flag.Bool("verify-only", false, "verify the input and exit")
	checkEach := flag.Bool("verify-between", false, "run the verifier after every pass")
	out := flag.String("o", "", "write optimized IL to this file instead of stdout")
	verbosity := flag.Int("v", 0, "log verbosity")
	flag.Parse()

	commonlog.Configure(*verbosity, nil)

	if flag.NArg() < 1 {
		fmt.Println("Usage: viper-opt [flags] <file.vil>")
		flag.PrintDefaults()
		os.Exit(1)
	}
	path := flag.Arg(0)

	source, err := os.ReadFile(path)
	if err != nil {
		color.Red("Failed to read file: %s", err)
		os.Exit(1)
	}

	module, err := il.Parse(path, string(source))
	if err != nil {
		reportParseError(string(source), err)
		os.Exit(1)
	}

	if err := verify.Module(module); err != nil {
		reporter := verify.NewReporter()
		reporter.Add(err)
		if reporter.HasErrors() {
			reporter.Report(string(source))
		} else {
			color.Red("%s", err)
		}
		os.Exit(1)
	}
	if *verifyOnly {
		color.Green("✅ %s verifies", path)
		return
	}

	pm := transform.NewPassManager()
	pm.SetVerifyBetweenPasses(*checkEach)

	if *passes != "" {
		list := strings.Split(*passes, ",")
		for i := range list {
			list[i] = strings.TrimSpace(list[i])
		}
		if err := pm.Run(module, list); err != nil {
			color.Red("Optimization failed: %s", err)
			os.Exit(1)
		}
	} else {
		found, err := pm.RunPipeline(module, *pipeline)
		if err != nil {
			color.Red("Optimization failed: %s", err)
			os.Exit(1)
		}
		if !found {
			color.Red("Unknown pipeline %q", *pipeline)
			os.Exit(1)
		}
	}

	if err := verify.Module(module); err != nil {
		color.Red("Post-optimization verification failed: %s", err)
		os.Exit(1)
	}

	text := ir.Print(module)
	if *out != "" {
		if err := os.WriteFile(*out, []byte(text), 0o644); err != nil {
			color.Red("Failed to write output: %s", err)
			os.Exit(1)
		}
	} else {
		fmt.Print(text)
	}

	if *run {
		result := interp.Run(module)
		if result.Trapped {
			color.Yellow("⚠ trapped: %s", result.TrapMessage)
			os.Exit(2)
		}
		fmt.Printf("=> %d\n", result.Value)
	}
}

// reportParseError prints a friendly caret-style parse error message.
func reportParseError(src string, err error) {
	pe, ok := err.(participle.Error)
	if !ok {
		color.Red("Unexpected error: %s", err)
		return
	}

	pos := pe.Position()
	lines := strings.Split(src, "\n")
	if pos.Line <= 0 || pos.Line > len(lines) {
		color.Red("Syntax error at unknown location: %s", err)
		return
	}

	line := lines[pos.Line-1]
	caret := strings.Repeat(" ", pos.Column-1) + "^"

	color.Red("❌ Syntax error in %s at line %d, column %d:", pos.Filename, pos.Line, pos.Column)
	fmt.Println(line)
	color.HiRed(caret)
	fmt.Printf("→ %s\n", pe.Message())
}
