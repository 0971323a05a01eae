package main

import (
	"NetVerdict/internal/sink/file"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/gobana/main.go <batch_dir>")
		os.Exit(1)
	}
	batchDir := os.Args[1]

	flows, err := file.ReadFlows(batchDir)
	if err != nil {
		log.Fatalf("Failed to read flows: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSOURCE\tDESTINATION\tPROTO\tCLASSIFICATION\tCONF\tANOMALY\tRISK\tLEVEL")
	for _, f := range flows {
		fmt.Fprintf(w, "%s\t%s:%d\t%s:%d\t%s\t%s\t%.2f\t%.2f\t%.2f\t%s\n",
			f.Record.ID, f.Record.SrcIP, f.Record.SrcPort, f.Record.DstIP, f.Record.DstPort,
			f.Record.ProtocolName(), f.Verdict.FinalClassification, f.Verdict.Confidence,
			f.Verdict.AnomalyScore, f.Verdict.RiskScore, f.Verdict.RiskLevel)
	}
	w.Flush()
	fmt.Printf("%d flows\n", len(flows))
}
