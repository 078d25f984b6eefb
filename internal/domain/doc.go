// Package domain models epidemiological case-count data and the merge of
// several upstream feeds into one location tree.
//
// # Data Sources
//
// Every refresh fetches the following feeds. The parsers in this package are
// pure: they turn a payload into (location, Metrics) rows and know nothing
// about the other sources.
//
//	primary       Country;Province;Confirmed;Deaths;Recovered;LastUpdated
//	              semicolon-delimited, LastUpdated in epoch milliseconds
//	nhs_regions   NHSRNm,TotalCases           (United Kingdom areas)
//	uk_regions    GSS_NM,TotalCases           (United Kingdom areas)
//	districts     {"raw_data":[{"detecteddistrict":"..."}]}
//	              one element per confirmed case, counted per district
//	constituents  Date,Country,Indicator,Value (England, Scotland, Wales,
//	              Northern Ireland; latest date only)
//	subnational   Date,Country,AreaCode,Area,TotalCases
//	              (one constituent region, latest date only)
//
// # Conventions
//
// Blank numeric fields are zero. A blank primary timestamp is the fetch time.
// Regional counts may contain thousands separators ("1,234").
//
// A primary row is a country total when its Province is blank or equals the
// country name ignoring case; otherwise it is an area of that country.
//
// # Merge Order
//
// Normalize applies batches in Source declaration order: primary first, then
// the regional feeds, districts, constituents and sub-national areas. Later
// writes overwrite earlier ones at the same key. Fetch completion order never
// affects the result.
//
// # Consistency
//
// deaths + recoveries <= cases is not enforced. Summarize reports a negative
// still-sick figure when sources disagree.
package domain
