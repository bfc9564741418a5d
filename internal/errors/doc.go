// Package errors provides structured, actionable error messages for the
// fluxstore command.
//
// An Error carries a stable code, a category, a plain-language explanation
// and a hint on how to fix the problem. Configuration errors point at the
// offending line of the YAML file and show the lines around it.
//
// # Error Codes
//
//   - E101-E104: usage errors raised as panics by the library (see notify.UsageError)
//   - E120-E139: configuration errors
//   - E140-E159: command line errors
//   - E160-E179: state storage errors
//
// # Usage
//
//	err := errors.New("E120").
//	    WithLocation("fluxstore.yaml", 7, 0).
//	    WithSuggestion("Durations look like 100ms, 2s or 1m")
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR E120: Invalid configuration file
//	//
//	//   fluxstore.yaml:7
//	//
//	//        5 │ timing:
//	//        6 │   coalesce: 100ms
//	//   →    7 │   debounce: fast
//	//        8 │ stores:
//	//
//	//   Hint: Durations look like 100ms, 2s or 1m
package errors
