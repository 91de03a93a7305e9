/*
Package setup lays out a fresh game. Pools are transient named collections of entities; setup commands carve
pools out of the store, move entities between them and finally deal them into the holds of other entities.

Everything here goes through the public gamedata API, so a setup run on a tracking store is recorded like any
other transaction. Randomness comes from a seeded source owned by the Pools registry: two peers running the same
setup with the same seed against the same store produce the same layout.
*/
package setup
