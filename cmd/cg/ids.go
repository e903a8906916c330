package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/citegraph/internal/export"
	"github.com/matsen/citegraph/internal/pdf"
)

var idsPages int

var idsCmd = &cobra.Command{
	Use:   "ids",
	Short: "Harvest identifiers for the project file",
}

var idsFromPDFCmd = &cobra.Command{
	Use:   "from-pdf <dir>",
	Short: "List DOIs printed on the first pages of PDFs",
	Long: `Walk a directory for PDF files and print the DOI found on each, ready
to paste into the identifiers list of the project file.

Examples:
  cg ids from-pdf ~/papers --human`,
	Args: cobra.ExactArgs(1),
	Run:  runIDsFromPDF,
}

var idsFromBibCmd = &cobra.Command{
	Use:   "from-bib <file>",
	Short: "List the DOIs of a BibTeX file",
	Args:  cobra.ExactArgs(1),
	Run:   runIDsFromBib,
}

func init() {
	idsFromPDFCmd.Flags().IntVar(&idsPages, "pages", pdf.DefaultPages, "Leading pages searched per PDF")
	idsCmd.AddCommand(idsFromPDFCmd, idsFromBibCmd)
	rootCmd.AddCommand(idsCmd)
}

// PDFScanResponse is the JSON output of cg ids from-pdf.
type PDFScanResponse struct {
	DOIs       []string    `json:"dois"`
	Found      []pdf.Found `json:"found"`
	NoDOI      []string    `json:"no_doi,omitempty"`
	Unreadable []string    `json:"unreadable,omitempty"`
}

func runIDsFromPDF(cmd *cobra.Command, args []string) {
	ctx, cancel := signalContext()
	defer cancel()

	res, err := pdf.ScanDir(ctx, args[0], idsPages, logger.Named("pdf"))
	if err != nil {
		exitWithError(ExitError, "scanning %s: %v", args[0], err)
	}

	if humanOutput {
		for _, doi := range res.DOIs() {
			outputHuman("- %s\n", doi)
		}
		outputHuman("# %d PDFs with a DOI, %d without, %d unreadable\n",
			len(res.Found), len(res.NoDOI), len(res.Unreadable))
		return
	}
	mustOutputJSON(PDFScanResponse{
		DOIs:       res.DOIs(),
		Found:      res.Found,
		NoDOI:      res.NoDOI,
		Unreadable: res.Unreadable,
	})
}

func runIDsFromBib(cmd *cobra.Command, args []string) {
	idx, err := export.ParseBibTeXFile(args[0])
	if err != nil {
		exitWithError(ExitError, "reading %s: %v", args[0], err)
	}
	if humanOutput {
		for _, doi := range idx.Ordered {
			outputHuman("- %s\n", doi)
		}
		return
	}
	mustOutputJSON(idx.Ordered)
}
