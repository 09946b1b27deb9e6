package cmd

type flagsT struct {
	root struct {
		workspace string
		logLevel  string
	}
	snapshot struct {
		leaf        string
		rootEttle   string
		leafOrdinal int
		profile     string
		policy      string
		ambiguity   string
		dryRun      bool
		expectHead  string
		noHead      bool
		dedup       bool
	}
}

var ettlexFlags flagsT
