package tools

// DefaultRegistry returns a Registry populated with all eight closed-set
// tools (§4.3), wiring router and provider as the external swap/lend
// collaborators (out of scope per §1, depended on only through their
// abstract contracts).
func DefaultRegistry(router SwapRouter, provider LendProvider) *Registry {
	r := NewRegistry()
	r.Register(GetAccountBalanceSpec())
	r.Register(SOLTransferSpec())
	r.Register(SPLTransferSpec())
	r.Register(JupiterSwapSpec(router))
	for _, spec := range LendSpecs(provider) {
		r.Register(spec)
	}
	return r
}
