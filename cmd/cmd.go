package cmd

import (
	"os"

	"github.com/evomassiny/golox/debug"
	"github.com/evomassiny/golox/vm"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	easy "github.com/t-tomalak/logrus-easy-formatter"
)

// App builds the `golox` root command: `golox compile <file>` compiles and
// disassembles a script without running it; `golox repl` starts an
// interactive session. Both share the `-v/--verbosity` flag.
func App() (app *cobra.Command) {
	app = &cobra.Command{
		Use:   "golox",
		Short: "Compile and run Lox programs",
	}

	app.PersistentFlags().SortFlags = true
	defaultVerbosityStr := "INFO"
	verbosity := app.PersistentFlags().StringP("verbosity", "v", defaultVerbosityStr, "Logging verbosity")

	app.PersistentPreRun = func(_ *cobra.Command, _ []string) {
		verbosityLvl, err := logrus.ParseLevel(*verbosity)
		if err != nil {
			verbosityLvl, _ = logrus.ParseLevel(defaultVerbosityStr)
		}
		logrus.SetLevel(verbosityLvl)
		logrus.SetFormatter(&easy.Formatter{LogFormat: "//DBG// %msg%\n"})
		debug.DEBUG = verbosityLvl >= logrus.DebugLevel
	}

	app.AddCommand(compileCmd(), replCmd())
	return
}

func compileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compile <file>",
		Short: "Compile a Lox source file and disassemble it",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			parser := vm.NewParser()
			fun, compileErr := parser.Compile(string(src), false)
			if fun != nil {
				logrus.Println(fun.Disassemble())
			}
			if compileErr != nil {
				logrus.Error(compileErr)
				os.Exit(65) // EX_DATAERR, matching clox's exit code on a compile-time error.
			}
			return nil
		},
	}
}

func replCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive Lox session",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return vm.NewVM().REPL()
		},
	}
}
