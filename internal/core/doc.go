// Package core provides the reconciliation dashboard's business logic.
//
// The package is independent of any UI or storage layer. It can be used by
// the web handlers, the CLI or tests without modification.
//
// # Architecture
//
//   - Dataset model: [Record], [Dataset] and the column rename table
//     returned by [Schema]. [BuildDataset] turns a [RawTable] from a
//     [Source] into typed records.
//   - Status normalization: [Normalize] and [Classify] map status and flow
//     values to presentation tags; [Tags] builds the per-row tag matrix.
//   - Filtering: [Apply] narrows a dataset by [Criteria]; [BuildOptions]
//     enumerates the values users can select.
//   - Metrics: [ReconciliationRate], [ValueDelta] and [IntegrityRatio],
//     bundled by [Summarize] and rendered by [Formatter].
//   - Export: [WriteCSV] and [WriteXLSX] with display labels as headers.
//   - Service: [Service] loads through a [SnapshotCache] and serves views
//     and exports.
//
// # Failure model
//
// Loads are all-or-nothing. A failed load is reported as an empty dataset
// plus an error [Notice]; cells that fail to convert degrade to absent
// values and raise warning notices instead of failing the load.
//
// # Example
//
//	svc, _ := core.NewService(core.ServiceConfig{Source: src, Cache: c})
//	view := svc.View(ctx, core.Criteria{FlowTypes: []string{"CASHIN"}})
//	if view.Summary != nil {
//	    fmt.Println(view.Summary.Rate.Percent)
//	}
package core
