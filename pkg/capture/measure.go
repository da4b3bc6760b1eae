package capture

import (
	"context"

	"docshot/pkg/errors"
	"docshot/pkg/viewport"
)

// MeasurePage queries the page geometry once for a run. A device pixel
// ratio the remote cannot report is taken as 1.
func MeasurePage(ctx context.Context, ctrl viewport.Controller, normalize bool) (viewport.PageInfo, error) {
	info, err := ctrl.QueryMetrics(ctx, normalize)
	if err != nil {
		return viewport.PageInfo{}, asRemote("metrics", err)
	}

	if info.ScreenWidth <= 0 || info.ScreenHeight <= 0 {
		return viewport.PageInfo{}, errors.Newf(errors.ErrorTypeRemote, "metrics",
			"invalid viewport size %dx%d", info.ScreenWidth, info.ScreenHeight)
	}
	if info.DocumentWidth <= 0 || info.DocumentHeight <= 0 {
		return viewport.PageInfo{}, errors.Newf(errors.ErrorTypeRemote, "metrics",
			"invalid document size %dx%d", info.DocumentWidth, info.DocumentHeight)
	}
	if info.DevicePixelRatio <= 0 {
		info.DevicePixelRatio = 1
	}
	return info, nil
}

// asRemote types a controller failure as a remote error unless the
// controller already classified it
func asRemote(op string, err error) error {
	if err == nil || errors.TypeOf(err) != errors.ErrorTypeUnknown {
		return err
	}
	return errors.Wrap(errors.ErrorTypeRemote, op, err)
}
