package geo

import (
	"github.com/mmcloughlin/geohash"

	"fleettrack/internal/types"
)

// bucketPrecision of 8 characters gives cells of roughly 38m x 19m, so the
// bucket center stays within ~25m of the encoded point.
const bucketPrecision = 8

// Bucket returns the coarse spatial key of a route origin.
func Bucket(p types.Point) string {
	return geohash.EncodeWithPrecision(p.Lat, p.Lng, bucketPrecision)
}

// BucketCenter decodes a bucket back to the center of its cell.
func BucketCenter(bucket string) types.Point {
	lat, lng := geohash.DecodeCenter(bucket)
	return types.Point{Lat: lat, Lng: lng}
}
