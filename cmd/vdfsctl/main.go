package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"golang.org/x/term"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "status":
		statusCmd(args)
	case "nodes":
		nodesCmd(args)
	case "ls":
		lsCmd(args)
	case "upload":
		uploadCmd(args)
	case "download":
		downloadCmd(args)
	case "rm":
		rmCmd(args)
	case "mkdir":
		mkdirCmd(args)
	case "rmdir":
		rmdirCmd(args)
	case "verify":
		verifyCmd(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("vdfsctl - VDFS control-plane client")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  vdfsctl status [flags]               - node and cluster health")
	fmt.Println("  vdfsctl nodes [flags]                 - list known peers")
	fmt.Println("  vdfsctl ls [flags] <dir>              - list a directory")
	fmt.Println("  vdfsctl upload [flags] <local> <path> - upload a file")
	fmt.Println("  vdfsctl download [flags] <path> <out> - download a file")
	fmt.Println("  vdfsctl rm [flags] <path>              - delete a file")
	fmt.Println("  vdfsctl mkdir [flags] <path>           - create a directory")
	fmt.Println("  vdfsctl rmdir [flags] <path>            - remove an empty directory")
	fmt.Println("  vdfsctl verify [flags] <path>           - fetch a signed verification message")
	fmt.Println()
	fmt.Println("Run 'vdfsctl <command> -h' for command-specific flags")
}

func addrFlag(fs *flag.FlagSet) *string {
	return fs.String("addr", "http://127.0.0.1:9090", "control-plane base address")
}

func statusCmd(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	addr := addrFlag(fs)
	fs.Parse(args)

	var resp map[string]any
	if err := getJSON(*addr+"/api/v1/system/health", &resp); err != nil {
		fail(err)
	}
	printJSON(resp)
}

func nodesCmd(args []string) {
	fs := flag.NewFlagSet("nodes", flag.ExitOnError)
	addr := addrFlag(fs)
	fs.Parse(args)

	var resp map[string]any
	if err := getJSON(*addr+"/api/v1/nodes", &resp); err != nil {
		fail(err)
	}
	printJSON(resp)
}

func lsCmd(args []string) {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	addr := addrFlag(fs)
	fs.Parse(args)
	dir := "/"
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}

	var resp map[string]any
	u := *addr + "/api/v1/files?dir=" + url.QueryEscape(dir)
	if err := getJSON(u, &resp); err != nil {
		fail(err)
	}
	printJSON(resp)
}

func uploadCmd(args []string) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	addr := addrFlag(fs)
	fs.Parse(args)
	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Usage: vdfsctl upload [flags] <local-file> <remote-path>")
		os.Exit(1)
	}
	local, remote := fs.Arg(0), fs.Arg(1)

	data, err := os.ReadFile(local)
	if err != nil {
		fail(err)
	}

	u := *addr + "/api/v1/files/upload?path=" + url.QueryEscape(remote)
	req, err := http.NewRequest(http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		fail(err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fail(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		fail(httpError(resp))
	}
	fmt.Printf("uploaded %d bytes to %s\n", len(data), remote)
}

func downloadCmd(args []string) {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	addr := addrFlag(fs)
	fs.Parse(args)
	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Usage: vdfsctl download [flags] <remote-path> <local-file>")
		os.Exit(1)
	}
	remote, local := fs.Arg(0), fs.Arg(1)

	u := *addr + "/api/v1/files/download?path=" + url.QueryEscape(remote)
	resp, err := http.Get(u)
	if err != nil {
		fail(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		fail(httpError(resp))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		fail(err)
	}
	if err := os.WriteFile(local, data, 0o644); err != nil {
		fail(err)
	}
	fmt.Printf("downloaded %d bytes to %s\n", len(data), local)
}

func rmCmd(args []string) {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	addr := addrFlag(fs)
	fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: vdfsctl rm [flags] <remote-path>")
		os.Exit(1)
	}
	u := *addr + "/api/v1/files/delete?path=" + url.QueryEscape(fs.Arg(0))
	req, err := http.NewRequest(http.MethodDelete, u, nil)
	if err != nil {
		fail(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fail(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		fail(httpError(resp))
	}
	fmt.Printf("deleted %s\n", fs.Arg(0))
}

func mkdirCmd(args []string) {
	fs := flag.NewFlagSet("mkdir", flag.ExitOnError)
	addr := addrFlag(fs)
	fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: vdfsctl mkdir [flags] <remote-path>")
		os.Exit(1)
	}
	body, _ := json.Marshal(map[string]string{"path": fs.Arg(0)})
	resp, err := http.Post(*addr+"/api/v1/directories", "application/json", bytes.NewReader(body))
	if err != nil {
		fail(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		fail(httpError(resp))
	}
	fmt.Printf("created %s\n", fs.Arg(0))
}

func rmdirCmd(args []string) {
	fs := flag.NewFlagSet("rmdir", flag.ExitOnError)
	addr := addrFlag(fs)
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: vdfsctl rmdir [flags] <remote-path>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	if !*yes && !confirm(fmt.Sprintf("remove directory %s?", path)) {
		fmt.Println("aborted")
		return
	}

	u := *addr + "/api/v1/directories?path=" + url.QueryEscape(path)
	req, err := http.NewRequest(http.MethodDelete, u, nil)
	if err != nil {
		fail(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fail(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		fail(httpError(resp))
	}
	fmt.Printf("removed %s\n", path)
}

func verifyCmd(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	addr := addrFlag(fs)
	fs.Parse(args)
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: vdfsctl verify [flags] <remote-path>")
		os.Exit(1)
	}

	var resp map[string]any
	u := *addr + "/api/v1/files/verify?path=" + url.QueryEscape(fs.Arg(0))
	if err := getJSON(u, &resp); err != nil {
		fail(err)
	}
	printJSON(resp)
}

// confirm prompts for a yes/no answer on an interactive terminal; a
// non-interactive stdin (piped input, a script) is treated as "no" so
// destructive commands never silently proceed under automation.
func confirm(prompt string) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false
	}
	fmt.Printf("%s [y/N] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func getJSON(u string, out any) error {
	resp, err := http.Get(u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return httpError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func httpError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("%s: %s", resp.Status, string(body))
}

func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
