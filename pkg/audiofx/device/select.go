package device

// preference order used when several outputs are connected at once,
// lower index wins
var typePriority = []Type{
	TypeBluetoothA2DP,
	TypeBluetoothSCO,
	TypeUSBDevice,
	TypeUSBAccessory,
	TypeDock,
	TypeWiredHeadset,
	TypeWiredHeadphones,
	TypeLineDigital,
	TypeLineAnalog,
	TypeIP,
	TypeHDMI,
	TypeBuiltinSpeaker,
	TypeUnknown,
}

func priority(t Type) int {
	for idx, candidate := range typePriority {
		if candidate == t {
			return idx
		}
	}
	return len(typePriority)
}

// Best picks the device music should currently be routed to. Candidates of
// equal priority keep their source order. ok is false for an empty list.
func Best(candidates []Info) (best Info, ok bool) {
	bestPriority := len(typePriority) + 1

	for _, candidate := range candidates {
		if p := priority(candidate.Type); p < bestPriority {
			best = candidate
			bestPriority = p
			ok = true
		}
	}

	return best, ok
}
