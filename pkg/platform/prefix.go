package platform

import "github.com/openr-go/openr/pkg/model"

// PrefixUpdateRequest is the egress queue payload Link-Monitor/other
// prefix sources send to Prefix-Manager (spec §6).
type PrefixUpdateRequest struct {
	Cmd      PrefixUpdateCmd
	Type     model.PrefixType
	Prefixes []model.PrefixEntry
	DstAreas []string
}
