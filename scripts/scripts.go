// Command scripts cuts pinloop releases: it cross-compiles the binary for
// the Raspberry Pi targets with version info baked in, then publishes the
// archives with the gh CLI.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

func must(err error) {
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

type SemanticVersion struct {
	Major, Minor, Patch int
}

var semverPattern = regexp.MustCompile(`^v(\d+)\.(\d+)\.(\d+)$`)

func ParseSemVer(s string) (SemanticVersion, error) {
	m := semverPattern.FindStringSubmatch(s)
	if m == nil {
		return SemanticVersion{}, fmt.Errorf("invalid semantic version: '%s'", s)
	}

	var parts [3]int
	for i := range parts {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return SemanticVersion{}, err
		}
		parts[i] = n
	}
	return SemanticVersion{Major: parts[0], Minor: parts[1], Patch: parts[2]}, nil
}

// Bump returns the next version for "major", "minor" or "patch", or parses
// an exact version like v1.2.3.
func (sv SemanticVersion) Bump(how string) (SemanticVersion, error) {
	switch how {
	case "major":
		return SemanticVersion{Major: sv.Major + 1}, nil
	case "minor":
		return SemanticVersion{Major: sv.Major, Minor: sv.Minor + 1}, nil
	case "patch":
		return SemanticVersion{Major: sv.Major, Minor: sv.Minor, Patch: sv.Patch + 1}, nil
	}
	return ParseSemVer(how)
}

func (sv SemanticVersion) String() string {
	return fmt.Sprintf("v%d.%d.%d", sv.Major, sv.Minor, sv.Patch)
}

type target struct {
	goarch string
	goarm  string
}

var targets = []target{
	{goarch: "arm", goarm: "6"},
	{goarch: "arm64"},
}

func (t target) name() string {
	return "linux-" + t.goarch + t.goarm
}

// ldflags fills the version variables main reads at startup.
func ldflags(version, commit string, built time.Time) string {
	return strings.Join([]string{
		"-s", "-w",
		"-X main.version=" + version,
		"-X main.commitHash=" + commit,
		"-X main.buildUnixTimestamp=" + strconv.FormatInt(built.Unix(), 10),
	}, " ")
}

func run(name string, args []string, env ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), env...)
	return cmd.Run()
}

func output(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).Output()
	return strings.TrimSpace(string(out)), err
}

func build(version SemanticVersion) []string {
	commit, err := output("git", "rev-parse", "--short", "HEAD")
	must(err)
	flags := ldflags(version.String(), commit, time.Now())

	must(os.MkdirAll("dist", 0755))

	var archives []string
	for _, t := range targets {
		dir := filepath.Join("dist", "pinloop-"+version.String()+"-"+t.name())
		must(os.MkdirAll(dir, 0755))

		fmt.Println("Building", t.name())
		must(run("go", []string{"build", "-trimpath", "-ldflags", flags, "-o", filepath.Join(dir, "pinloop"), "."},
			"CGO_ENABLED=0", "GOOS=linux", "GOARCH="+t.goarch, "GOARM="+t.goarm))

		archive := dir + ".tgz"
		must(run("tar", []string{"-czf", archive, "-C", "dist", filepath.Base(dir)}))
		archives = append(archives, archive)
	}
	return archives
}

var (
	actionFlag  string
	versionFlag string
)

func main() {
	flag.StringVar(&actionFlag, "action", "", "build or release")
	flag.StringVar(&versionFlag, "version", "", "major, minor, patch, or an exact version (e.g. v1.2.3)")
	flag.Parse()

	if actionFlag != "build" && actionFlag != "release" {
		fmt.Printf("Invalid action: '%s'\n", actionFlag)
		os.Exit(1)
	}
	if versionFlag == "" {
		fmt.Println("--version is required")
		os.Exit(1)
	}

	current := SemanticVersion{}
	if described, err := output("git", "describe", "--tags", "--abbrev=0"); err == nil {
		current, err = ParseSemVer(described)
		must(err)
	}
	fmt.Println("Current version:", current)

	next, err := current.Bump(versionFlag)
	must(err)
	fmt.Println("New version:", next)

	archives := build(next)
	if actionFlag == "build" {
		return
	}

	args := append([]string{"release", "create", next.String(), "--generate-notes"}, archives...)
	must(run("gh", args))
}
