// Copyright confd Authors
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

// Command conftool is the command-line client of §6: a thin wrapper over
// internal/clientengine that either talks to a running confd over RPC or,
// with --direct, opens the source stack itself and bypasses the daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	_ "github.com/hyperair/confd/internal/backend/jsonfile"
	_ "github.com/hyperair/confd/internal/backend/memory"
	"github.com/hyperair/confd/internal/build"
	"github.com/hyperair/confd/internal/cerr"
	"github.com/hyperair/confd/internal/clientengine"
	"github.com/hyperair/confd/internal/config"
	"github.com/hyperair/confd/internal/keypath"
	"github.com/hyperair/confd/internal/rpc"
	"github.com/hyperair/confd/internal/rpc/httptransport"
	"github.com/hyperair/confd/internal/schemafile"
	"github.com/hyperair/confd/internal/source"
	"github.com/hyperair/confd/internal/value"
	"github.com/alecthomas/kingpin/v2"
)

// Exit codes per §6: 0 success, 1 error, 2 a boolean query came back false.
const (
	exitOK     = 0
	exitError  = 1
	exitBoolNo = 2
)

func main() {
	app := kingpin.New("conftool", "Hierarchical configuration command-line client.")
	app.HelpFlag.Short('h')
	app.Version(build.String())

	address := app.Flag("address", "confd RPC address to connect to.").Default("127.0.0.1:9595").String()
	direct := app.Flag("direct", "Bypass the daemon and open the source path directly.").Bool()
	sourcePath := app.Flag("config-source", "Source address to use with --direct (repeatable).").Strings()

	get := app.Flag("get", "Print the value of KEY.").String()
	set := app.Flag("set", "Set KEY to VALUE; requires --type and a trailing value argument.").String()
	typ := app.Flag("type", "Value type for --set: int, float, bool, string.").String()
	unset := app.Flag("unset", "Remove KEY, reverting it to its schema default.").String()
	recursiveUnset := app.Flag("recursive-unset", "Remove DIR and every key below it.").String()
	allEntries := app.Flag("all-entries", "List every key directly inside DIR.").String()
	allDirs := app.Flag("all-dirs", "List every subdirectory directly inside DIR.").String()
	recursiveList := app.Flag("recursive-list", "List every key below DIR, recursively.").String()
	dirExists := app.Flag("dir-exists", "Exit 0 if DIR exists, 2 if it does not.").String()
	ping := app.Flag("ping", "Exit 0 if the daemon answers, 2 if it does not.").Bool()
	shutdown := app.Flag("shutdown", "Ask the daemon to shut down cleanly.").Bool()
	spawn := app.Flag("spawn", "Start a confd daemon in the background if one is not already reachable.").Bool()
	daemonPath := app.Flag("daemon-path", "Path to the confd binary used by --spawn.").Default("confd").String()
	installSchemaFile := app.Flag("install-schema-file", "Install every schema in FILE against its applyto keys.").String()
	makefileInstallRule := app.Flag("makefile-install-rule", "Print a make(1) rule installing the given schema files, one per invocation.").Strings()
	breakKey := app.Flag("break-key", "Store a value that fails to satisfy its own declared type, for client robustness testing (repeatable).").Strings()
	breakDirectory := app.Flag("break-directory", "Like --break-key, but targets a synthetic key under each DIR (repeatable).").Strings()

	value_ := app.Arg("value", "Value for --set.").String()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx := context.Background()

	if len(*makefileInstallRule) > 0 {
		printMakefileInstallRule(*makefileInstallRule)
		os.Exit(exitOK)
	}

	if *spawn {
		if err := spawnDaemon(*daemonPath, *address); err != nil {
			fail(err)
		}
		os.Exit(exitOK)
	}

	engine, closeEngine := buildEngine(*direct, *address, *sourcePath)
	defer closeEngine()

	if *ping {
		if _, err := engine.GetDefaultDatabase(ctx); err != nil {
			os.Exit(exitBoolNo)
		}
		os.Exit(exitOK)
	}

	if *shutdown {
		if err := engine.Shutdown(ctx); err != nil {
			fail(err)
		}
		os.Exit(exitOK)
	}

	dbID, err := engine.GetDefaultDatabase(ctx)
	if err != nil {
		fail(err)
	}

	switch {
	case *get != "":
		mustValidKey(*get)
		res, err := engine.LookupWithLocale(ctx, dbID, *get, nil)
		if err != nil {
			fail(err)
		}
		if res.Value == nil {
			os.Exit(exitBoolNo)
		}
		fmt.Println(res.Value.String())

	case *set != "":
		mustValidKey(*set)
		if *typ == "" {
			fail(cerr.New(cerr.ParseError, "--set requires --type"))
		}
		v, err := parseSetValue(*typ, *value_)
		if err != nil {
			fail(err)
		}
		if err := engine.Set(ctx, dbID, *set, v); err != nil {
			fail(err)
		}

	case *unset != "":
		mustValidKey(*unset)
		if err := engine.Unset(ctx, dbID, *unset); err != nil {
			fail(err)
		}

	case *recursiveUnset != "":
		mustValidKey(*recursiveUnset)
		if err := engine.RecursiveUnset(ctx, dbID, *recursiveUnset); err != nil {
			fail(err)
		}

	case *allEntries != "":
		mustValidKey(*allEntries)
		res, err := engine.AllEntries(ctx, dbID, *allEntries, nil)
		if err != nil {
			fail(err)
		}
		for _, e := range res.Entries {
			printEntry(e.Key, e.Value, e.IsDefault)
		}

	case *allDirs != "":
		mustValidKey(*allDirs)
		dirs, err := engine.AllDirs(ctx, dbID, *allDirs)
		if err != nil {
			fail(err)
		}
		for _, d := range dirs {
			fmt.Println(d)
		}

	case *recursiveList != "":
		mustValidKey(*recursiveList)
		if err := recursiveListDir(ctx, engine, dbID, *recursiveList); err != nil {
			fail(err)
		}

	case *dirExists != "":
		mustValidKey(*dirExists)
		ok, err := engine.DirExists(ctx, dbID, *dirExists)
		if err != nil {
			fail(err)
		}
		if !ok {
			os.Exit(exitBoolNo)
		}

	case *installSchemaFile != "":
		if err := installSchemas(ctx, engine, dbID, *installSchemaFile); err != nil {
			fail(err)
		}

	case len(*breakKey) > 0:
		for _, k := range *breakKey {
			mustValidKey(k)
			if err := engine.Set(ctx, dbID, k, value.NewInvalid()); err != nil {
				fail(err)
			}
		}

	case len(*breakDirectory) > 0:
		for _, d := range *breakDirectory {
			mustValidKey(d)
			if err := engine.Set(ctx, dbID, keypath.Concat(d, "broken"), value.NewInvalid()); err != nil {
				fail(err)
			}
		}

	default:
		app.Usage(os.Args[1:])
		os.Exit(exitError)
	}
}

func buildEngine(direct bool, address string, sourcePath []string) (clientengine.Engine, func() error) {
	if direct {
		paths := sourcePath
		if len(paths) == 0 {
			paths = config.Default().SourcePath
		}
		stack, err := source.NewStack(paths)
		if err != nil {
			fail(err)
		}
		e := clientengine.NewLocal(stack)
		return e, e.Close
	}

	dial := func() rpc.DaemonAPI { return httptransport.NewDaemonClient("http://" + address) }
	e := clientengine.NewRemote(dial)
	return e, e.Close
}

func mustValidKey(key string) {
	if ok, reason := keypath.IsValid(key); !ok {
		fail(cerr.New(cerr.BadKey, "%s: %s", key, reason))
	}
}

func parseSetValue(typeName, literal string) (*value.Value, error) {
	switch typeName {
	case "string":
		return value.NewString(literal), nil
	case "int":
		var i int32
		if _, err := fmt.Sscan(literal, &i); err != nil {
			return nil, cerr.Wrap(cerr.ParseError, err, "parsing int value %q", literal)
		}
		return value.NewInt(i), nil
	case "float":
		var f float64
		if _, err := fmt.Sscan(literal, &f); err != nil {
			return nil, cerr.Wrap(cerr.ParseError, err, "parsing float value %q", literal)
		}
		return value.NewFloat(f), nil
	case "bool":
		return value.NewBool(literal == "true" || literal == "1"), nil
	default:
		return nil, cerr.New(cerr.ParseError, "unsupported --type %q", typeName)
	}
}

func printEntry(key string, v *value.Value, isDefault bool) {
	suffix := ""
	if isDefault {
		suffix = "  (default)"
	}
	val := "<unset>"
	if v != nil {
		val = v.String()
	}
	fmt.Printf("%s = %s%s\n", key, val, suffix)
}

func recursiveListDir(ctx context.Context, engine clientengine.Engine, dbID, dir string) error {
	res, err := engine.AllEntries(ctx, dbID, dir, nil)
	if err != nil {
		return err
	}
	for _, e := range res.Entries {
		printEntry(e.Key, e.Value, e.IsDefault)
	}
	dirs, err := engine.AllDirs(ctx, dbID, dir)
	if err != nil {
		return err
	}
	for _, d := range dirs {
		if err := recursiveListDir(ctx, engine, dbID, d); err != nil {
			return err
		}
	}
	return nil
}

func installSchemas(ctx context.Context, engine clientengine.Engine, dbID, path string) error {
	entries, err := schemafile.ParseFile(path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		for _, target := range e.ApplyTo {
			mustValidKey(target)
			if err := engine.SetSchema(ctx, dbID, target, e.Key); err != nil {
				return err
			}
		}
	}
	return nil
}

// printMakefileInstallRule prints a make(1) rule that installs the given
// schema files via conftool --install-schema-file, in the style of the
// standalone install rule gconftool-2 generates for packagers.
func printMakefileInstallRule(files []string) {
	fmt.Println("install-schemas:")
	for _, f := range files {
		fmt.Printf("\tconftool --install-schema-file=%s\n", f)
	}
}

// spawnDaemon starts daemonPath in the background and waits briefly for it
// to answer on address, per §6's "--spawn starts a daemon if none is
// already running and reachable."
func spawnDaemon(daemonPath, address string) error {
	client := httptransport.NewDaemonClient("http://" + address)
	pingCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	alreadyUp := client.Ping(pingCtx) == nil
	cancel()
	if alreadyUp {
		return nil
	}

	cmd := exec.Command(daemonPath, "--listen", address)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return cerr.Wrap(cerr.Failed, err, "spawning %s", daemonPath)
	}
	go cmd.Wait()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		err := client.Ping(ctx)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return cerr.New(cerr.NoServer, "spawned %s but it never became reachable at %s", daemonPath, address)
}

func fail(err error) {
	msg := err.Error()
	if strings.HasPrefix(msg, string(cerr.KindOf(err))+":") {
		msg = strings.TrimSpace(strings.TrimPrefix(msg, string(cerr.KindOf(err))+":"))
	}
	fmt.Fprintf(os.Stderr, "conftool: %s\n", msg)
	os.Exit(exitError)
}
