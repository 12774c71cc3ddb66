// Package metadefender provides a Go client for the MetaDefender Cloud v4 file
// analysis API and the workflow that turns a local file into a finished report.
//
// The workflow looks the file up by its SHA-256 fingerprint first. If the
// service already knows the file, its existing analysis is reused and nothing is
// uploaded. Otherwise the file is uploaded and the returned data_id is polled
// until the analysis reaches the completion threshold (99% by default).
//
// # Quick Start
//
//	client, err := metadefender.NewClientFromEnv()
//	if err != nil {
//	    log.Fatal(err) // OPSWAT_API_KEY not set
//	}
//	defer client.Close()
//
//	data, _ := os.ReadFile("/path/to/file.pdf")
//	wf := metadefender.NewWorkflow(client)
//	out, err := wf.Resolve(ctx, metadefender.ComputeFingerprint(data), data, "file.pdf")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	metadefender.WriteReport(os.Stdout, out.Report)
package metadefender
