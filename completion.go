package jobsh

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ArgumentSource suggests arguments previously given to a command, most
// used first.
type ArgumentSource interface {
	Arguments(command, prefix string, limit int) ([]string, error)
}

const maxArgumentCandidates = 20

// Completer offers builtin and PATH command names in command position and
// file names elsewhere. Its Do method satisfies readline.AutoCompleter.
type Completer struct {
	sh           *Shell
	commands     []string
	commandsLock sync.RWMutex
	loaded       chan struct{}
	args         ArgumentSource
}

// NewCompleter scans the shell's PATH in the background.
func NewCompleter(sh *Shell) *Completer {
	c := &Completer{
		sh:       sh,
		commands: BuiltinNames(),
		loaded:   make(chan struct{}),
	}
	go c.loadCommands(sh.Env.Value("PATH"))
	return c
}

func (c *Completer) loadCommands(path string) {
	defer close(c.loaded)
	seen := make(map[string]bool)
	var found []string
	for _, dir := range filepath.SplitList(path) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			info, err := entry.Info()
			if err != nil || !info.Mode().IsRegular() || info.Mode().Perm()&0111 == 0 {
				continue
			}
			if !seen[entry.Name()] {
				seen[entry.Name()] = true
				found = append(found, entry.Name())
			}
		}
	}

	c.commandsLock.Lock()
	c.commands = append(c.commands, found...)
	sort.Strings(c.commands)
	c.commandsLock.Unlock()
}

// UseArguments ranks remembered arguments ahead of file names when
// completing a command's arguments.
func (c *Completer) UseArguments(src ArgumentSource) {
	c.args = src
}

// Wait blocks until the PATH scan has finished.
func (c *Completer) Wait() {
	<-c.loaded
}

func (c *Completer) Do(line []rune, pos int) (newLine [][]rune, length int) {
	lineStr := string(line[:pos])
	word := lastWord(lineStr)
	before := strings.TrimSuffix(lineStr, word)
	if commandPosition(before) {
		return c.completeCommands(word)
	}
	if c.args != nil && !strings.Contains(word, "/") && !redirectTarget(before) {
		if name := stageCommand(before); name != "" {
			return c.completeArguments(name, word)
		}
	}
	return c.completeFilenames(word)
}

// lastWord returns the text after the last blank or operator.
func lastWord(line string) string {
	i := strings.LastIndexAny(line, " \t|;&<>")
	return line[i+1:]
}

// commandPosition reports whether a word following before names a program.
func commandPosition(before string) bool {
	before = strings.TrimRight(before, " \t")
	if before == "" {
		return true
	}
	switch before[len(before)-1] {
	case '|', ';', '&':
		return true
	}
	return false
}

// redirectTarget reports whether a word following before is a file name
// for < or >.
func redirectTarget(before string) bool {
	before = strings.TrimRight(before, " \t")
	return strings.HasSuffix(before, "<") || strings.HasSuffix(before, ">")
}

// stageCommand returns the program name of the stage being typed.
func stageCommand(before string) string {
	if i := strings.LastIndexAny(before, "|;&"); i >= 0 {
		before = before[i+1:]
	}
	fields := strings.Fields(before)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func (c *Completer) completeCommands(prefix string) (newLine [][]rune, length int) {
	c.commandsLock.RLock()
	defer c.commandsLock.RUnlock()

	var last string
	for _, cmd := range c.commands {
		if cmd == last || !strings.HasPrefix(cmd, prefix) {
			continue
		}
		last = cmd
		newLine = append(newLine, []rune(cmd[len(prefix):]))
	}
	if len(newLine) == 1 {
		newLine[0] = append(newLine[0], ' ')
	}
	return newLine, len([]rune(prefix))
}

func (c *Completer) completeFilenames(word string) (newLine [][]rune, length int) {
	dir, prefix := filepath.Split(word)
	searchDir := dir
	if searchDir == "" {
		searchDir = "."
	}
	searchDir = c.expandHome(searchDir)
	if !filepath.IsAbs(searchDir) {
		searchDir = filepath.Join(c.sh.Dir, searchDir)
	}

	entries, err := os.ReadDir(searchDir)
	if err != nil {
		return nil, len([]rune(prefix))
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(prefix, ".") {
			continue
		}
		completion := name[len(prefix):]
		if entry.IsDir() {
			completion += "/"
		}
		newLine = append(newLine, []rune(completion))
	}
	return newLine, len([]rune(prefix))
}

func (c *Completer) completeArguments(name, word string) (newLine [][]rune, length int) {
	seen := make(map[string]bool)
	args, err := c.args.Arguments(name, word, maxArgumentCandidates)
	if err != nil {
		c.sh.Log.Debug("argument history unavailable", "command", name, "err", err)
	}
	for _, arg := range args {
		if !strings.HasPrefix(arg, word) || seen[arg] {
			continue
		}
		seen[arg] = true
		newLine = append(newLine, []rune(arg[len(word):]))
	}

	files, _ := c.completeFilenames(word)
	for _, f := range files {
		if !seen[word+string(f)] {
			seen[word+string(f)] = true
			newLine = append(newLine, f)
		}
	}
	return newLine, len([]rune(word))
}

func (c *Completer) expandHome(dir string) string {
	if dir != "~/" && !strings.HasPrefix(dir, "~/") {
		return dir
	}
	home, ok := c.sh.Env.Get("HOME")
	if !ok {
		return dir
	}
	return home + dir[1:]
}
