package filesystem

const (
	// TemporaryNamePrefix is the file name prefix used for all temporary files
	// created by cached-nix-shell inside its cache directory. It may be
	// suffixed with additional elements if desired.
	TemporaryNamePrefix = ".cached-nix-shell-temporary-"
)
