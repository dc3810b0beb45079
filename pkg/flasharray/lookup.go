package flasharray

import (
	"context"
	"strings"

	"github.com/purestorage-openconnect/hanasnap/pkg/errors"
)

// FindVolumeBySerial returns the array volume backing a host-side serial.
// Host multipath serials embed the array serial behind a vendor prefix, so
// matching is case-insensitive containment.
func FindVolumeBySerial(ctx context.Context, a Array, serial string) (*Volume, error) {
	vols, err := a.ListVolumes(ctx)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(serial)
	for i := range vols {
		if vols[i].Serial == "" {
			continue
		}
		if strings.Contains(needle, strings.ToLower(vols[i].Serial)) {
			return &vols[i], nil
		}
	}
	return nil, errors.Newf(errors.KindVolumeNotFound, "no array volume matches serial %q", serial)
}
