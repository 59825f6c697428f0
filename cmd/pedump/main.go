package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	pe "github.com/Wang-P/libpe"
	"github.com/spf13/cobra"
)

var version = "0.0.1"

type dumpFlags struct {
	all          bool
	dosHeader    bool
	richHeader   bool
	ntHeader     bool
	directories  bool
	sections     bool
	export       bool
	importDir    bool
	resources    bool
	exceptions   bool
	security     bool
	relocations  bool
	debug        bool
	tls          bool
	loadConfig   bool
	boundImport  bool
	delayImport  bool
	com          bool
}

func prettyPrint(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<marshal error: %v>", err)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "\t"); err != nil {
		return string(raw)
	}
	return out.String()
}

func dumpFile(filename string, f dumpFlags) {
	img, err := pe.Open(filename, &pe.Options{})
	if err != nil {
		log.Printf("%s: %v", filename, err)
		return
	}
	defer img.Close()

	fmt.Printf("==> %s\n", filename)

	if f.all || f.dosHeader {
		if v, ok := img.DOSHeader(); ok {
			fmt.Println(prettyPrint(v))
		}
	}
	if f.all || f.richHeader {
		if v, ok := img.RichHeader(); ok {
			fmt.Println(prettyPrint(v))
		}
	}
	if f.all || f.ntHeader {
		if v, ok := img.NTHeader(); ok {
			fmt.Println(prettyPrint(v))
		}
	}
	if f.all || f.directories {
		if v, ok := img.DataDirectories(); ok {
			fmt.Println(prettyPrint(v))
		}
	}
	if f.all || f.sections {
		if v, ok := img.SectionHeaders(); ok {
			fmt.Println(prettyPrint(v))
		}
	}
	if f.all || f.export {
		if v, ok := img.Export(); ok {
			fmt.Println(prettyPrint(v))
		}
	}
	if f.all || f.importDir {
		if v, ok := img.Import(); ok {
			fmt.Println(prettyPrint(v))
		}
	}
	if f.all || f.resources {
		if v, ok := img.Resources(); ok {
			fmt.Println(prettyPrint(v))
		}
	}
	if f.all || f.exceptions {
		if v, ok := img.Exceptions(); ok {
			fmt.Println(prettyPrint(v))
		}
	}
	if f.all || f.security {
		if v, ok := img.Security(); ok {
			fmt.Println(prettyPrint(v))
		}
	}
	if f.all || f.relocations {
		if v, ok := img.Relocations(); ok {
			fmt.Println(prettyPrint(v))
		}
	}
	if f.all || f.debug {
		if v, ok := img.Debug(); ok {
			fmt.Println(prettyPrint(v))
		}
	}
	if f.all || f.tls {
		if v, ok := img.TLS(); ok {
			fmt.Println(prettyPrint(v))
		}
	}
	if f.all || f.loadConfig {
		if v, ok := img.LoadConfig(); ok {
			fmt.Println(prettyPrint(v))
		}
	}
	if f.all || f.boundImport {
		if v, ok := img.BoundImport(); ok {
			fmt.Println(prettyPrint(v))
		}
	}
	if f.all || f.delayImport {
		if v, ok := img.DelayImport(); ok {
			fmt.Println(prettyPrint(v))
		}
	}
	if f.all || f.com {
		if v, ok := img.COMDescriptor(); ok {
			fmt.Println(prettyPrint(v))
		}
	}

	if anomalies := img.Anomalies(); len(anomalies) > 0 {
		fmt.Println(prettyPrint(anomalies))
	}
}

func walk(path string, f dumpFlags) {
	info, err := os.Stat(path)
	if err != nil {
		log.Printf("%s: %v", path, err)
		return
	}
	if !info.IsDir() {
		dumpFile(path, f)
		return
	}
	filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return nil
		}
		dumpFile(p, f)
		return nil
	})
}

func main() {
	var f dumpFlags

	rootCmd := &cobra.Command{
		Use:   "pedump",
		Short: "A Portable Executable file parser",
		Long:  "A PE/COFF binary parser built for malware-analysis tooling",
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("pedump version", version)
		},
	}

	dumpCmd := &cobra.Command{
		Use:   "dump <path>...",
		Short: "Dumps the structure of one or more PE files",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			for _, path := range args {
				walk(path, f)
			}
		},
	}

	dumpCmd.Flags().BoolVar(&f.all, "all", false, "dump everything")
	dumpCmd.Flags().BoolVar(&f.dosHeader, "dosheader", false, "dump DOS header")
	dumpCmd.Flags().BoolVar(&f.richHeader, "richheader", false, "dump Rich header")
	dumpCmd.Flags().BoolVar(&f.ntHeader, "ntheader", false, "dump NT header")
	dumpCmd.Flags().BoolVar(&f.directories, "directories", false, "dump data directory array")
	dumpCmd.Flags().BoolVar(&f.sections, "sections", false, "dump section headers")
	dumpCmd.Flags().BoolVar(&f.export, "export", false, "dump export table")
	dumpCmd.Flags().BoolVar(&f.importDir, "import", false, "dump import table")
	dumpCmd.Flags().BoolVar(&f.resources, "resources", false, "dump resource tree")
	dumpCmd.Flags().BoolVar(&f.exceptions, "exceptions", false, "dump exception directory")
	dumpCmd.Flags().BoolVar(&f.security, "security", false, "dump security/certificate directory")
	dumpCmd.Flags().BoolVar(&f.relocations, "relocations", false, "dump base relocations")
	dumpCmd.Flags().BoolVar(&f.debug, "debug", false, "dump debug directory")
	dumpCmd.Flags().BoolVar(&f.tls, "tls", false, "dump TLS directory")
	dumpCmd.Flags().BoolVar(&f.loadConfig, "loadconfig", false, "dump load config directory")
	dumpCmd.Flags().BoolVar(&f.boundImport, "boundimport", false, "dump bound import descriptors")
	dumpCmd.Flags().BoolVar(&f.delayImport, "delayimport", false, "dump delay-load import descriptors")
	dumpCmd.Flags().BoolVar(&f.com, "com", false, "dump CLR/.NET COM descriptor header")

	rootCmd.AddCommand(versionCmd, dumpCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
