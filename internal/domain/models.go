// Package domain provides the shared vocabulary of the citation pipeline:
// provider kinds, reference sources, run states and error kinds.
package domain

// Provider identifies the kind of a citation identifier and the adapter
// responsible for resolving it.
type Provider string

const (
	ProviderDOI   Provider = "doi"
	ProviderPMID  Provider = "pmid"
	ProviderPMCID Provider = "pmcid"
	ProviderArXiv Provider = "arxiv"
	ProviderISBN  Provider = "isbn"
	ProviderURL   Provider = "url"
	ProviderRaw   Provider = "raw"
)

// AllProviders lists every supported provider in a stable order.
var AllProviders = []Provider{
	ProviderDOI,
	ProviderPMID,
	ProviderPMCID,
	ProviderArXiv,
	ProviderISBN,
	ProviderURL,
	ProviderRaw,
}

// IsValid reports whether p is a supported provider.
func (p Provider) IsValid() bool {
	for _, known := range AllProviders {
		if p == known {
			return true
		}
	}
	return false
}

// RequiresNetwork reports whether resolving identifiers of this provider
// needs an outbound request.
func (p Provider) RequiresNetwork() bool {
	return p != ProviderRaw
}

// ReferenceSource records where the final CSL item of a reference came from.
type ReferenceSource string

const (
	SourceFetched ReferenceSource = "fetched"
	SourceManual  ReferenceSource = "manual"
	SourceMerged  ReferenceSource = "merged"
)

// RunState is a stage of a resolution run.
type RunState string

const (
	RunStateInit          RunState = "init"
	RunStateParsing       RunState = "parsing"
	RunStateFetching      RunState = "fetching"
	RunStateOverlaying    RunState = "overlaying"
	RunStateValidating    RunState = "validating"
	RunStateKeyAssignment RunState = "key_assignment"
	RunStateDone          RunState = "done"
)

// IsTerminal returns true if the run will not advance past this state.
func (s RunState) IsTerminal() bool {
	return s == RunStateDone
}

// Next returns the state that follows s. Done is its own successor.
func (s RunState) Next() RunState {
	switch s {
	case RunStateInit:
		return RunStateParsing
	case RunStateParsing:
		return RunStateFetching
	case RunStateFetching:
		return RunStateOverlaying
	case RunStateOverlaying:
		return RunStateValidating
	case RunStateValidating:
		return RunStateKeyAssignment
	default:
		return RunStateDone
	}
}
