// Package wmts generates OGC WMTS 1.0.0 GetCapabilities documents (§6) for
// a style, in the two MapLibre-friendly GoogleMapsCompatible tile matrix
// sets: a 256px-tile set matching standard web map tiles, and a 512px
// retina set using @2x tile requests.
package wmts

import (
	"fmt"
	"net/url"
	"strings"
)

// scaleDenominators256 is the standard GoogleMapsCompatible scale
// denominator per zoom level 0-18 at a 256px tile size.
var scaleDenominators256 = [19]float64{
	559082264.0287178, 279541132.0143589, 139770566.0071794, 69885283.00358972,
	34942641.50179486, 17471320.75089743, 8735660.375448715, 4367830.187724357,
	2183915.093862179, 1091957.546931089, 545978.7734655447, 272989.3867327723,
	136494.6933663862, 68247.34668319309, 34123.67334159654, 17061.83667079827,
	8530.918335399136, 4265.459167699568, 2132.729583849784,
}

const topLeftCorner = "-20037508.34 20037508.34"

// GenerateCapabilities builds the GetCapabilities XML document for one
// style, advertising both the 256px and 512px tile matrix sets across
// [minZoom, maxZoom]. No key is forwarded; GenerateCapabilitiesWithKey adds
// one to every advertised URL.
func GenerateCapabilities(baseURL, styleID, styleName string, minZoom, maxZoom int) string {
	return GenerateCapabilitiesWithKey(baseURL, styleID, styleName, minZoom, maxZoom, "")
}

// GenerateCapabilitiesWithKey is GenerateCapabilities with an API key
// forwarded on every advertised URL.
func GenerateCapabilitiesWithKey(baseURL, styleID, styleName string, minZoom, maxZoom int, key string) string {
	keyQuery := ""
	if key != "" {
		keyQuery = "?key=" + url.QueryEscape(key)
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	fmt.Fprintf(&b, `<Capabilities xmlns="http://www.opengis.net/wmts/1.0" `+
		`xmlns:ows="http://www.opengis.net/ows/1.1" `+
		`xmlns:xlink="http://www.w3.org/1999/xlink" `+
		`xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" `+
		`xsi:schemaLocation="http://www.opengis.net/wmts/1.0 http://schemas.opengis.net/wmts/1.0/wmtsGetCapabilities_response.xsd" `+
		`version="1.0.0">`+"\n")

	b.WriteString("  <ows:ServiceIdentification>\n")
	b.WriteString("    <ows:Title>TileServer RS</ows:Title>\n")
	b.WriteString("    <ows:ServiceType>OGC WMTS</ows:ServiceType>\n")
	b.WriteString("    <ows:ServiceTypeVersion>1.0.0</ows:ServiceTypeVersion>\n")
	b.WriteString("  </ows:ServiceIdentification>\n")

	capabilitiesURL := fmt.Sprintf("%s/styles/%s/wmts.xml%s", baseURL, styleID, keyQuery)
	b.WriteString("  <ows:OperationsMetadata>\n")
	writeRESTOperation(&b, "GetCapabilities", capabilitiesURL)
	writeRESTOperation(&b, "GetTile", capabilitiesURL)
	b.WriteString("  </ows:OperationsMetadata>\n")

	b.WriteString("  <Contents>\n")
	writeLayer(&b, baseURL, styleID, styleName, 256, keyQuery)
	writeLayer(&b, baseURL, styleID, styleName, 512, keyQuery)
	writeTileMatrixSet(&b, 256, minZoom, maxZoom)
	writeTileMatrixSet(&b, 512, minZoom, maxZoom)
	b.WriteString("  </Contents>\n")

	fmt.Fprintf(&b, "  <ServiceMetadataURL xlink:href=\"%s\"/>\n", xmlEscapeAttr(capabilitiesURL))
	b.WriteString("</Capabilities>\n")
	return b.String()
}

func writeRESTOperation(b *strings.Builder, name, href string) {
	fmt.Fprintf(b, "    <ows:Operation name=\"%s\">\n", name)
	fmt.Fprintf(b, "      <ows:DCP><ows:HTTP><ows:Get xlink:href=\"%s\">\n", xmlEscapeAttr(href))
	b.WriteString("        <ows:Constraint name=\"GetEncoding\"><ows:AllowedValues><ows:Value>RESTful</ows:Value></ows:AllowedValues></ows:Constraint>\n")
	b.WriteString("      </ows:Get></ows:HTTP></ows:DCP>\n")
	b.WriteString("    </ows:Operation>\n")
}

func writeLayer(b *strings.Builder, baseURL, styleID, styleName string, tileSize int, keyQuery string) {
	layerID := fmt.Sprintf("%s-%d", styleID, tileSize)
	matrixSet := fmt.Sprintf("GoogleMapsCompatible_%d", tileSize)
	ext := "png"
	if tileSize == 512 {
		ext = "@2x.png"
	}
	tileURL := fmt.Sprintf("%s/styles/%s/{TileMatrix}/{TileCol}/{TileRow}.%s%s", baseURL, styleID, ext, keyQuery)

	b.WriteString("    <Layer>\n")
	fmt.Fprintf(b, "      <ows:Title>%s</ows:Title>\n", xmlEscape(styleName))
	fmt.Fprintf(b, "      <ows:Identifier>%s</ows:Identifier>\n", xmlEscape(layerID))
	b.WriteString("      <ows:WGS84BoundingBox>\n")
	b.WriteString("        <ows:LowerCorner>-180 -85.051128779807</ows:LowerCorner>\n")
	b.WriteString("        <ows:UpperCorner>180 85.051128779807</ows:UpperCorner>\n")
	b.WriteString("      </ows:WGS84BoundingBox>\n")
	b.WriteString("      <Style isDefault=\"true\"><ows:Identifier>default</ows:Identifier></Style>\n")
	b.WriteString("      <Format>image/png</Format>\n")
	fmt.Fprintf(b, "      <TileMatrixSetLink><TileMatrixSet>%s</TileMatrixSet></TileMatrixSetLink>\n", matrixSet)
	fmt.Fprintf(b, "      <ResourceURL format=\"image/png\" resourceType=\"tile\" template=\"%s\"/>\n", xmlEscapeAttr(tileURL))
	b.WriteString("    </Layer>\n")
}

func writeTileMatrixSet(b *strings.Builder, tileSize, minZoom, maxZoom int) {
	matrixSet := fmt.Sprintf("GoogleMapsCompatible_%d", tileSize)
	b.WriteString("    <TileMatrixSet>\n")
	fmt.Fprintf(b, "      <ows:Identifier>%s</ows:Identifier>\n", matrixSet)
	b.WriteString("      <ows:SupportedCRS>urn:ogc:def:crs:EPSG::3857</ows:SupportedCRS>\n")

	if maxZoom > 18 {
		maxZoom = 18
	}
	for z := minZoom; z <= maxZoom; z++ {
		denom := scaleDenominators256[z]
		if tileSize == 512 {
			denom /= 2
		}
		matrixWidth := 1 << uint(z)
		b.WriteString("      <TileMatrix>\n")
		fmt.Fprintf(b, "        <ows:Identifier>%d</ows:Identifier>\n", z)
		fmt.Fprintf(b, "        <ScaleDenominator>%v</ScaleDenominator>\n", denom)
		fmt.Fprintf(b, "        <TopLeftCorner>%s</TopLeftCorner>\n", topLeftCorner)
		fmt.Fprintf(b, "        <TileWidth>%d</TileWidth>\n", tileSize)
		fmt.Fprintf(b, "        <TileHeight>%d</TileHeight>\n", tileSize)
		fmt.Fprintf(b, "        <MatrixWidth>%d</MatrixWidth>\n", matrixWidth)
		fmt.Fprintf(b, "        <MatrixHeight>%d</MatrixHeight>\n", matrixWidth)
		b.WriteString("      </TileMatrix>\n")
	}
	b.WriteString("    </TileMatrixSet>\n")
}

func xmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

func xmlEscapeAttr(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}
