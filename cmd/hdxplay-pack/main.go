package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"hdxplay/internal/progress"
	"hdxplay/internal/security"
	"hdxplay/pkg/audioengine"
	"hdxplay/pkg/spec"

	"github.com/chzyer/readline"
)

const (
	version_minor      = 0
	version_major      = 1
	developer_title    = "Developer Hardiyanto"
	developer_subtitle = "Build 27/12/2025 Ebiet Version"
	app_name           = "HDXPlay-Pack"
	stream_ext         = ".hdxs"
)

func main() {
	dest := flag.String("o", ".", "destination folder (must exist)")
	password := flag.String("password", "", "seal packets with this password (empty: plain)")
	flag.Parse()

	inputs := flag.Args()
	if len(inputs) == 0 {
		var in string
		in, *dest, *password = runPackInterview()
		inputs = strings.Fields(in)
	}
	if len(inputs) == 0 {
		fmt.Println("[FAIL] no input wav")
		os.Exit(2)
	}

	var sealer *security.Sealer
	if *password != "" {
		s, err := security.NewSealer(security.DeriveKey(*password, []byte(spec.Salt)))
		if err != nil {
			fmt.Printf("[FAIL] %v\n", err)
			os.Exit(1)
		}
		sealer = s
	}

	fmt.Printf("\n[START] PACKING %d file[s] -> %s\n", len(inputs), *dest)
	bar := progress.New(os.Stdout, "PACKING", len(inputs), progress.Files)
	failed := 0
	var reports []string

	for _, in := range inputs {
		out := filepath.Join(*dest, strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))+stream_ext)
		st, err := packFile(in, out, sealer)
		if err != nil {
			failed++
			reports = append(reports, fmt.Sprintf(" [!] %s: %v", in, err))
		} else {
			reports = append(reports, fmt.Sprintf(" >> %s: %d packets, %d bytes, %.2f sec, %d Hz x%d",
				out, st.Packets, st.Bytes, st.Duration, st.SampleRate, st.Channels))
		}
		bar.Add(1)
	}

	for _, r := range reports {
		fmt.Println(r)
	}
	if failed > 0 {
		fmt.Printf("\n[FAIL] %d of %d file[s] failed\n", failed, len(inputs))
		os.Exit(1)
	}
	fmt.Println("\n[SUCCESS] Streams packed")
}

func packFile(in, out string, sealer *security.Sealer) (audioengine.EncodeStats, error) {
	src, err := os.Open(in)
	if err != nil {
		return audioengine.EncodeStats{}, err
	}
	defer src.Close()

	dst, err := os.Create(out)
	if err != nil {
		return audioengine.EncodeStats{}, err
	}

	st, err := audioengine.EncodeWavToStream(src, dst, sealer)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out)
	}
	return st, err
}

func runPackInterview() (string, string, string) {
	rl, err := readline.NewEx(&readline.Config{Prompt: ">> "})
	if err != nil {
		fmt.Printf("[FAIL] %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Printf("\n%s version %d.%d\n", app_name, version_major, version_minor)
	fmt.Printf("%s\n", developer_title)
	fmt.Printf("%s\n", developer_subtitle)
	i := ask(rl, "1. WAV files (space separated)", "")
	d := ask(rl, "2. Destination Folder (must exist)", ".")
	p := ask(rl, "3. Password (empty = plain)", "")

	return i, d, p
}

func ask(rl *readline.Instance, prompt, def string) string {
	rl.SetPrompt(fmt.Sprintf("%s [%s]: ", prompt, def))
	line, _ := rl.Readline()
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}
