// Package domain models the daily fire-weather archive: index rasters, region
// masks, per-region readings, and the long-lived archive table.
//
// # Data Source
//
// A forecasting job renders one single-band GeoTIFF per fire-weather index and
// calendar day into a shared folder. File names concatenate the index name and
// the date without separator:
//
//	"{index}{YYYYMMDD}.tif"  →  e.g. "fwi20240825.tif", "t_msl20240825.tif"
//
// Sixteen indices are produced (see [IndexNames]). A day may be incomplete: a
// missing file means missing data for that index on that day, never an error.
//
// # Regions and Masks
//
// Warning regions are polygons with a "region_id" attribute, in the same
// projected coordinate system as the forest raster (EPSG:2056 for the Swiss
// warning regions). Each region is burned onto the forest grid with
// all-touched semantics and then intersected with the forest pixels, so a
// region mask never selects a pixel outside the forest:
//
//	mask(R) = touched(R) AND forest
//
// # Readings
//
// A [Reading] is the masked mean of one index raster over one region mask,
// rounded to one decimal place (half to even, matching the archive's
// historical values). A reading without value is missing: either the raster
// file was absent or the mask selected no valid pixel.
//
// # Archive
//
// The archive is a Parquet table rewritten in full on every run. Internally
// readings are kept in long form, keyed by (date, region_id, index_name):
//
//	date      region_id  index_name   value
//	20240825  3          fwi          12.4
//
// The wide form exported for consumers pivots the sixteen indices into columns
// keyed by (date, region_id). Merging is last-write-wins on the key, followed
// by an ascending sort on the key, which makes re-running the same day
// idempotent.
package domain
