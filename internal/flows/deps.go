package flows

// Deps groups flow dependency sets. The root session builds this once and
// delegates each operation to the matching flow.
type Deps struct {
	Login   LoginDeps
	Refresh RefreshDeps
	Restore RestoreDeps
	Logout  LogoutDeps
}
