package docsdb

var ParseRoster = parseRoster
