package aqmap

import (
	"fmt"
	"os"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
)

// wgs84WKT is the projection file content for longitude-latitude
// shapefiles.
const wgs84WKT = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["Degree",0.017453292519943295]]`

// ShapeRecord is one polygon in an exported shapefile.
type ShapeRecord struct {
	geom.Polygon
	Value      float64
	Normalized float64
	Easting    float64
	Northing   float64
}

// ExportShapefile writes the polygons of set to a shapefile at path in
// longitude-latitude coordinates, along with a matching .prj file.
func ExportShapefile(path string, set *PolygonSet) error {
	if !strings.HasSuffix(path, ".shp") {
		path += ".shp"
	}
	e, err := shp.NewEncoder(path, ShapeRecord{})
	if err != nil {
		return fmt.Errorf("aqmap: creating shapefile: %w", err)
	}
	for _, p := range set.Polygons() {
		x, y := p.Center()
		err := e.Encode(&ShapeRecord{
			Polygon:    p.worldPolygon(),
			Value:      p.Value(),
			Normalized: p.NormalizedValue(),
			Easting:    x,
			Northing:   y,
		})
		if err != nil {
			e.Close()
			return fmt.Errorf("aqmap: writing shapefile: %w", err)
		}
	}
	e.Close()

	prjFile, err := os.Create(strings.TrimSuffix(path, ".shp") + ".prj")
	if err != nil {
		return err
	}
	defer prjFile.Close()
	if _, err := fmt.Fprint(prjFile, wgs84WKT); err != nil {
		return err
	}
	return nil
}
