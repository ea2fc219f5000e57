package settlement

// consumeNonce records the nonce on the staged state before any balance
// mutation. Because the staged state is only swapped in when the whole
// transition succeeds, a rejected signature or failed transfer rolls the
// consumption back together with everything else.
func (e *Engine) consumeNonce(st *State, account [20]byte, nonce uint64) error {
	switch e.params.NoncePolicy {
	case NonceSet:
		used, ok := st.UsedNonces[account]
		if !ok {
			used = make(map[uint64]bool)
			st.UsedNonces[account] = used
		}
		if used[nonce] {
			return ErrNonceAlreadyUsed
		}
		used[nonce] = true
	default:
		if nonce <= st.LastNonce[account] {
			return ErrNonceNotIncreasing
		}
		st.LastNonce[account] = nonce
	}
	return nil
}
