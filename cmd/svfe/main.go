//
// Copyright 2022 FRAGATA COMPUTER SYSTEMS AG
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// svfe: preprocessor driver. Expands a SystemVerilog source file and
// prints the resulting token stream, reporting diagnostics on stderr.

package main

import (
    "fmt"
    "os"
    "strings"

    "github.com/pkg/errors"
    "github.com/urfave/cli/v2"
    "gopkg.in/yaml.v3"

    "fragata/svfe/core"
)

// Project file loaded via --config.
type projectConfig struct {
    IncludeDirs []string `yaml:"include_dirs"`
    Defines map[string]string `yaml:"defines"`
}

func main() {
    app := &cli.App{
        Name: "svfe",
        Usage: "SystemVerilog preprocessor driver",
        ArgsUsage: "<file>",
        Flags: []cli.Flag{
            &cli.StringSliceFlag{
                Name: "include-dir",
                Aliases: []string{"I"},
                Usage: "add a directory to the include search path",
            },
            &cli.StringSliceFlag{
                Name: "define",
                Aliases: []string{"D"},
                Usage: "define a macro, as name or name=value",
            },
            &cli.StringSliceFlag{
                Name: "undefine",
                Aliases: []string{"U"},
                Usage: "undefine a previously defined macro",
            },
            &cli.StringFlag{
                Name: "config",
                Usage: "project file with include dirs and defines",
            },
        },
        Action: run,
    }

    if err := app.Run(os.Args); err != nil {
        fmt.Fprintf(os.Stderr, "svfe: %s\n", err.Error())
        os.Exit(1)
    }
}

func run(ctx *cli.Context) error {
    if ctx.NArg() != 1 {
        return errors.New("expected exactly one input file")
    }
    input := ctx.Args().First()

    opts := core.DefaultOptions()
    opts.Predefines = make(map[string]string)

    if path := ctx.String("config"); len(path) != 0 {
        cfg, err := loadConfig(path)
        if err != nil {
            return err
        }
        opts.IncludeDirs = append(opts.IncludeDirs, cfg.IncludeDirs...)
        for name, value := range cfg.Defines {
            opts.Predefines[name] = value
        }
    }

    opts.IncludeDirs = append(opts.IncludeDirs, ctx.StringSlice("include-dir")...)
    for _, def := range ctx.StringSlice("define") {
        name, value := splitDefine(def)
        opts.Predefines[name] = value
    }

    sm := core.NewSourceManager()
    diags := core.NewDiagnostics()
    pp := core.NewPreprocessor(sm, diags, opts)

    for _, name := range ctx.StringSlice("undefine") {
        pp.UndefineMacro(name)
    }

    if err := pp.PushFile(input); err != nil {
        return err
    }

    printTokens(pp.Preprocess())

    for _, d := range diags.All() {
        fmt.Fprintln(os.Stderr, d.Report(sm))
    }
    if diags.HasErrors() {
        return errors.New("preprocessing failed")
    }
    return nil
}

func loadConfig(path string) (*projectConfig, error) {
    data, err := os.ReadFile(path)
    if err != nil {
        return nil, errors.Wrapf(err, "cannot read config %s", path)
    }
    cfg := new(projectConfig)
    if err := yaml.Unmarshal(data, cfg); err != nil {
        return nil, errors.Wrapf(err, "cannot parse config %s", path)
    }
    return cfg, nil
}

func splitDefine(def string) (string, string) {
    if i := strings.IndexByte(def, '='); i >= 0 {
        return def[:i], def[i+1:]
    }
    return def, "1"
}

// Prints the expanded stream, reconstructing spacing from trivia.
func printTokens(tokens []core.Token) {
    var sb strings.Builder
    for _, tok := range tokens {
        for _, tv := range tok.Trivia() {
            switch tv.Kind() {
            case core.TV_EOL:
                sb.WriteByte('\n')
            default:
                sb.WriteString(tv.RawText())
            }
        }
        sb.WriteString(tok.RawText())
    }
    fmt.Println(sb.String())
}
