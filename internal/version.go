package internal

// Version is the current release of danskrecall
const Version = "0.4.0"
